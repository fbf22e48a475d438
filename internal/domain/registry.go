package domain

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// DeviceRegistry implements the Registry interface. Getters return copies, so
// callers may read them while the registry keeps changing.
type DeviceRegistry struct {
	dataloggers map[string]*DataloggerInfo
	mutex       sync.RWMutex
	now         func() time.Time
}

// NewDeviceRegistry creates a new device registry.
func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{
		dataloggers: make(map[string]*DataloggerInfo),
		now:         time.Now,
	}
}

// RegisterDatalogger adds or updates a datalogger in the registry.
func (r *DeviceRegistry) RegisterDatalogger(id, ip string, port int, protocol uint16) error {
	if id == "" {
		return fmt.Errorf("datalogger id is empty")
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Check if datalogger already exists
	datalogger, exists := r.dataloggers[id]
	if !exists {
		datalogger = &DataloggerInfo{
			ID:          id,
			IP:          ip,
			Port:        port,
			Protocol:    protocol,
			LastContact: r.now(),
			Inverters:   make(map[string]*InverterInfo),
		}
		r.dataloggers[id] = datalogger
	} else {
		datalogger.IP = ip
		datalogger.Port = port
		datalogger.Protocol = protocol
		datalogger.LastContact = r.now()
	}

	return nil
}

// RegisterInverter adds or updates an inverter in the registry.
func (r *DeviceRegistry) RegisterInverter(dataloggerID, inverterID string, deviceID uint8) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	datalogger, exists := r.dataloggers[dataloggerID]
	if !exists {
		return fmt.Errorf("datalogger %s not found", dataloggerID)
	}

	inverter, exists := datalogger.Inverters[inverterID]
	if !exists {
		inverter = &InverterInfo{
			ID:          inverterID,
			DeviceID:    deviceID,
			LastContact: r.now(),
		}
		datalogger.Inverters[inverterID] = inverter
	} else {
		inverter.DeviceID = deviceID
		inverter.LastContact = r.now()
	}
	datalogger.LastContact = inverter.LastContact

	return nil
}

// GetDatalogger retrieves information about a datalogger.
func (r *DeviceRegistry) GetDatalogger(id string) (*DataloggerInfo, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	datalogger, exists := r.dataloggers[id]
	if !exists {
		return nil, false
	}

	return datalogger.clone(), true
}

// GetAllDataloggers returns information about all dataloggers, ordered by id.
func (r *DeviceRegistry) GetAllDataloggers() []*DataloggerInfo {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	dataloggers := make([]*DataloggerInfo, 0, len(r.dataloggers))
	for _, datalogger := range r.dataloggers {
		dataloggers = append(dataloggers, datalogger.clone())
	}
	sort.Slice(dataloggers, func(i, j int) bool {
		return dataloggers[i].ID < dataloggers[j].ID
	})

	return dataloggers
}

// GetInverters returns all inverters for a datalogger, ordered by device id.
func (r *DeviceRegistry) GetInverters(dataloggerID string) ([]*InverterInfo, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	datalogger, exists := r.dataloggers[dataloggerID]
	if !exists {
		return nil, false
	}

	inverters := make([]*InverterInfo, 0, len(datalogger.Inverters))
	for _, inverter := range datalogger.Inverters {
		copied := *inverter
		inverters = append(inverters, &copied)
	}
	sort.Slice(inverters, func(i, j int) bool {
		if inverters[i].DeviceID != inverters[j].DeviceID {
			return inverters[i].DeviceID < inverters[j].DeviceID
		}
		return inverters[i].ID < inverters[j].ID
	})

	return inverters, true
}

func (d *DataloggerInfo) clone() *DataloggerInfo {
	copied := *d
	copied.Inverters = make(map[string]*InverterInfo, len(d.Inverters))
	for id, inverter := range d.Inverters {
		inv := *inverter
		copied.Inverters[id] = &inv
	}
	return &copied
}
