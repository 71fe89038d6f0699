package models

import "time"

// Session is a read-only view of one refresh token, i.e. one signed-in device.
type Session struct {
	ID         string    `json:"id"`
	DeviceInfo string    `json:"deviceInfo"`
	Expires    time.Time `json:"expiry"`
	Revoked    bool      `json:"revoked"`
}
