package types

import "time"

// CommandIssued is published to the gateway for every new control command.
type CommandIssued struct {
	CommandID     string        `json:"commandId"`
	EquipmentID   string        `json:"equipmentId"`
	DeviceID      string        `json:"deviceId"`
	EquipmentName string        `json:"equipmentName"`
	EquipmentType EquipmentType `json:"equipmentType"`
	Pin           string        `json:"pin,omitempty"`
	CommandType   CommandType   `json:"commandType"`
	Value         *int          `json:"value,omitempty"`
	Mode          *Mode         `json:"mode,omitempty"`
	Source        CommandSource `json:"source"`
	Tenant        string        `json:"tenant,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

func (c *CommandIssued) ContentType() string {
	return "application/json"
}
func (c *CommandIssued) TopicName() string {
	return "command.issued"
}

// StageChanged tells in-zone controllers and displays which stage is running.
type StageChanged struct {
	ExecutionID   string          `json:"executionId"`
	ZoneID        string          `json:"zoneId"`
	RecipeName    string          `json:"recipeName"`
	Stage         int             `json:"stage"`
	StageName     string          `json:"stageName"`
	TotalStages   int             `json:"totalStages"`
	Progress      int             `json:"progress"`
	Status        ExecutionStatus `json:"status"`
	Environmental Environmental   `json:"environmental"`
	Lighting      *Lighting       `json:"lighting,omitempty"`
	Irrigation    *Irrigation     `json:"irrigation,omitempty"`
	Tenant        string          `json:"tenant,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

func (s *StageChanged) ContentType() string {
	return "application/json"
}
func (s *StageChanged) TopicName() string {
	return "execution.stage.changed"
}

// CommandStatusReport is received from the gateway as a command progresses.
type CommandStatusReport struct {
	CommandID string        `json:"commandId"`
	Status    CommandStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

const CommandStatusTopic string = "command.status"

type EquipmentState struct {
	State EquipmentStatus `json:"state"`
	Value *float64        `json:"value,omitempty"`
}

// EquipmentStatusReport is received from a gateway device and keyed by equipment name.
type EquipmentStatusReport struct {
	DeviceID  string                    `json:"deviceId"`
	Equipment map[string]EquipmentState `json:"equipment"`
	Timestamp time.Time                 `json:"timestamp"`
}

const EquipmentStatusTopic string = "equipment.status"
