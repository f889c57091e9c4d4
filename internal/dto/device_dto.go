package dto

// DeviceLookupResponse answers "which register belongs to this terminal".
// OpenRegister is set when a register bound to the device is currently open;
// otherwise LastRegisterNumber is the most recent historical association.
// CanManageOthers reflects the caller's role (admin/manager may manage any
// register, other roles only their device-bound or unbound ones).
type DeviceLookupResponse struct {
	DeviceID           string            `json:"device_id"`
	OpenRegister       *RegisterResponse `json:"open_register,omitempty"`
	LastRegisterNumber *int              `json:"last_register_number,omitempty"`
	CanManageOthers    bool              `json:"can_manage_others"`
}
