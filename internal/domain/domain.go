// Package domain provides core domain models and interfaces for grott-messages.
package domain

import (
	"context"
	"time"
)

// MessagePublisher defines the interface for publishing decoded messages.
type MessagePublisher interface {
	// Connect establishes a connection to the messaging system
	Connect(ctx context.Context) error

	// Publish sends data to the specified topic
	Publish(ctx context.Context, topic string, data interface{}) error

	// Close terminates the connection to the messaging system
	Close() error
}

// Registry keeps track of the devices seen in captured traffic.
type Registry interface {
	// RegisterDatalogger adds or updates a datalogger in the registry
	RegisterDatalogger(id string, ip string, port int, protocol uint16) error

	// RegisterInverter adds or updates an inverter in the registry
	RegisterInverter(dataloggerID string, inverterID string, deviceID uint8) error

	// GetDatalogger retrieves information about a datalogger
	GetDatalogger(id string) (*DataloggerInfo, bool)

	// GetAllDataloggers returns information about all dataloggers
	GetAllDataloggers() []*DataloggerInfo

	// GetInverters returns all inverters for a datalogger
	GetInverters(dataloggerID string) ([]*InverterInfo, bool)
}

// DataloggerInfo contains information about a datalogger.
type DataloggerInfo struct {
	ID          string                   `json:"id"`
	IP          string                   `json:"ip"`
	Port        int                      `json:"port"`
	Protocol    uint16                   `json:"protocol"`
	LastContact time.Time                `json:"last_contact"`
	Inverters   map[string]*InverterInfo `json:"inverters"`
}

// InverterInfo contains information about an inverter behind a datalogger.
type InverterInfo struct {
	ID          string    `json:"id"`
	DeviceID    uint8     `json:"device_id"`
	LastContact time.Time `json:"last_contact"`
}
