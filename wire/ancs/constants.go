package ancs

import "github.com/google/uuid"

// ANCS GATT service and characteristic UUIDs as published by Apple
var (
	ServiceUUID            = uuid.MustParse("7905F431-B5CE-4E99-A40F-4B1E122D00D0")
	NotificationSourceUUID = uuid.MustParse("9FBF120D-6301-42D9-8C58-25E699A21DBD")
	ControlPointUUID       = uuid.MustParse("69D1D8F3-45E1-49A8-9821-9BBDFDAAD9D9")
	DataSourceUUID         = uuid.MustParse("22EAC6E9-24D6-4BB5-BE44-B36ACE7C7BFB")
)

// CharacteristicNames maps characteristic UUIDs to short names (useful for logging)
var CharacteristicNames = map[uuid.UUID]string{
	NotificationSourceUUID: "NotificationSource",
	ControlPointUUID:       "ControlPoint",
	DataSourceUUID:         "DataSource",
}

// CharacteristicName returns a short name for an ANCS characteristic
func CharacteristicName(id uuid.UUID) string {
	if name, ok := CharacteristicNames[id]; ok {
		return name
	}
	return id.String()
}

const (
	// NotificationSourceLength is the fixed size of a Notification Source PDU
	// [EventID:1][EventFlags:1][CategoryID:1][CategoryCount:1][NotificationUID:4]
	NotificationSourceLength = 8

	// Data Source response header sizes
	// Notification attributes: [CommandID:1][NotificationUID:4]
	// App attributes:          [CommandID:1][AppIdentifier:N][0x00]
	notificationHeaderLength = 5

	// Each attribute on the Data Source: [AttributeID:1][Length:2][Value:Length]
	attributeFieldHeaderLength = 3
)
