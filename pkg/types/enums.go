package types

type BatchStatus string

const (
	BatchPlanned   BatchStatus = "planned"
	BatchActive    BatchStatus = "active"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
	BatchCancelled BatchStatus = "cancelled"
)

func (s BatchStatus) Valid() bool {
	switch s {
	case BatchPlanned, BatchActive, BatchCompleted, BatchFailed, BatchCancelled:
		return true
	}
	return false
}

func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchCompleted, BatchFailed, BatchCancelled:
		return true
	case BatchPlanned, BatchActive:
		return false
	}
	return false
}

// CanTransitionTo reports if a batch may move from s to next.
// Allowed: planned→active, active→completed, planned|active→failed|cancelled.
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	if s.IsTerminal() {
		return false
	}

	switch next {
	case BatchActive:
		return s == BatchPlanned
	case BatchCompleted:
		return s == BatchActive
	case BatchFailed, BatchCancelled:
		return true
	case BatchPlanned:
		return false
	}

	return false
}

type ExecutionStatus string

const (
	ExecutionActive          ExecutionStatus = "active"
	ExecutionPaused          ExecutionStatus = "paused"
	ExecutionWaitingApproval ExecutionStatus = "waiting_approval"
	ExecutionCompleted       ExecutionStatus = "completed"
	ExecutionAborted         ExecutionStatus = "aborted"
)

func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionActive, ExecutionPaused, ExecutionWaitingApproval, ExecutionCompleted, ExecutionAborted:
		return true
	}
	return false
}

// IsOpen reports if the execution still occupies its zone.
func (s ExecutionStatus) IsOpen() bool {
	switch s {
	case ExecutionActive, ExecutionPaused, ExecutionWaitingApproval:
		return true
	case ExecutionCompleted, ExecutionAborted:
		return false
	}
	return false
}

type ZoneStatus string

const (
	ZoneIdle      ZoneStatus = "idle"
	ZoneRunning   ZoneStatus = "running"
	ZonePaused    ZoneStatus = "paused"
	ZoneCompleted ZoneStatus = "completed"
	ZoneError     ZoneStatus = "error"
)

func (s ZoneStatus) Valid() bool {
	switch s {
	case ZoneIdle, ZoneRunning, ZonePaused, ZoneCompleted, ZoneError:
		return true
	}
	return false
}

type CropType string

const (
	CropMushroom   CropType = "mushroom"
	CropVegetable  CropType = "vegetable"
	CropLeafyGreen CropType = "leafy-green"
	CropBerry      CropType = "berry"
	CropHerb       CropType = "herb"
)

func (c CropType) Valid() bool {
	switch c {
	case CropMushroom, CropVegetable, CropLeafyGreen, CropBerry, CropHerb:
		return true
	}
	return false
}

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

type EquipmentType string

const (
	EquipmentFan        EquipmentType = "fan"
	EquipmentHumidifier EquipmentType = "humidifier"
	EquipmentHeater     EquipmentType = "heater"
	EquipmentCooler     EquipmentType = "cooler"
	EquipmentLight      EquipmentType = "light"
	EquipmentPump       EquipmentType = "pump"
	EquipmentValve      EquipmentType = "valve"
	EquipmentVFD        EquipmentType = "vfd"
	EquipmentRelay      EquipmentType = "relay"
	EquipmentOther      EquipmentType = "other"
)

func (t EquipmentType) Valid() bool {
	switch t {
	case EquipmentFan, EquipmentHumidifier, EquipmentHeater, EquipmentCooler, EquipmentLight,
		EquipmentPump, EquipmentValve, EquipmentVFD, EquipmentRelay, EquipmentOther:
		return true
	}
	return false
}

type ControlType string

const (
	ControlRelay   ControlType = "relay"
	ControlPWM     ControlType = "pwm"
	ControlAnalog  ControlType = "analog"
	ControlDigital ControlType = "digital"
)

func (c ControlType) Valid() bool {
	switch c {
	case ControlRelay, ControlPWM, ControlAnalog, ControlDigital:
		return true
	}
	return false
}

type EquipmentStatus string

const (
	EquipmentOn     EquipmentStatus = "on"
	EquipmentOff    EquipmentStatus = "off"
	EquipmentAuto   EquipmentStatus = "auto"
	EquipmentManual EquipmentStatus = "manual"
	EquipmentError  EquipmentStatus = "error"
)

func (s EquipmentStatus) Valid() bool {
	switch s {
	case EquipmentOn, EquipmentOff, EquipmentAuto, EquipmentManual, EquipmentError:
		return true
	}
	return false
}

type Mode string

const (
	ModeManual    Mode = "manual"
	ModeAuto      Mode = "auto"
	ModeScheduled Mode = "scheduled"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeManual, ModeAuto, ModeScheduled:
		return true
	}
	return false
}

type CommandType string

const (
	CommandTurnOn   CommandType = "turn_on"
	CommandTurnOff  CommandType = "turn_off"
	CommandSetValue CommandType = "set_value"
	CommandSetMode  CommandType = "set_mode"
	CommandStop     CommandType = "stop"
	CommandStart    CommandType = "start"
	CommandReset    CommandType = "reset"
)

func (c CommandType) Valid() bool {
	switch c {
	case CommandTurnOn, CommandTurnOff, CommandSetValue, CommandSetMode, CommandStop, CommandStart, CommandReset:
		return true
	}
	return false
}

type CommandSource string

const (
	SourceUser       CommandSource = "user"
	SourceAutomation CommandSource = "automation"
	SourceSchedule   CommandSource = "schedule"
	SourceRecipe     CommandSource = "recipe"
	SourceAPI        CommandSource = "api"
)

func (s CommandSource) Valid() bool {
	switch s {
	case SourceUser, SourceAutomation, SourceSchedule, SourceRecipe, SourceAPI:
		return true
	}
	return false
}

type CommandStatus string

const (
	CommandPending      CommandStatus = "pending"
	CommandSent         CommandStatus = "sent"
	CommandAcknowledged CommandStatus = "acknowledged"
	CommandCompleted    CommandStatus = "completed"
	CommandFailed       CommandStatus = "failed"
	CommandTimeout      CommandStatus = "timeout"
)

func (s CommandStatus) Valid() bool {
	return s.rank() >= 0
}

func (s CommandStatus) rank() int {
	switch s {
	case CommandPending:
		return 0
	case CommandSent:
		return 1
	case CommandAcknowledged:
		return 2
	case CommandCompleted, CommandFailed, CommandTimeout:
		return 3
	}
	return -1
}

func (s CommandStatus) IsTerminal() bool {
	return s.rank() == 3
}

// CanTransitionTo allows forward moves only. Intermediate states may be
// skipped, terminal states are final.
func (s CommandStatus) CanTransitionTo(next CommandStatus) bool {
	if !s.Valid() || !next.Valid() || s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

type HarvestStatus string

const (
	HarvestPlanned    HarvestStatus = "planned"
	HarvestInProgress HarvestStatus = "in_progress"
	HarvestCompleted  HarvestStatus = "completed"
	HarvestCancelled  HarvestStatus = "cancelled"
)

func (s HarvestStatus) Valid() bool {
	switch s {
	case HarvestPlanned, HarvestInProgress, HarvestCompleted, HarvestCancelled:
		return true
	}
	return false
}

type QualityGrade string

const (
	GradePremium  QualityGrade = "premium"
	GradeA        QualityGrade = "grade_a"
	GradeB        QualityGrade = "grade_b"
	GradeRejected QualityGrade = "rejected"
)

func (g QualityGrade) Valid() bool {
	switch g {
	case GradePremium, GradeA, GradeB, GradeRejected:
		return true
	}
	return false
}

type MarketDestination string

const (
	MarketLocal           MarketDestination = "local_market"
	MarketWholesale       MarketDestination = "wholesale"
	MarketRestaurant      MarketDestination = "restaurant"
	MarketDirectConsumer  MarketDestination = "direct_consumer"
	MarketExport          MarketDestination = "export"
	MarketSelfConsumption MarketDestination = "self_consumption"
	MarketOther           MarketDestination = "other"
)

func (m MarketDestination) Valid() bool {
	switch m {
	case MarketLocal, MarketWholesale, MarketRestaurant, MarketDirectConsumer, MarketExport, MarketSelfConsumption, MarketOther:
		return true
	}
	return false
}

type CostCategory string

const (
	CostSubstrate      CostCategory = "substrate"
	CostSpawn          CostCategory = "spawn"
	CostSupplements    CostCategory = "supplements"
	CostPackaging      CostCategory = "packaging"
	CostUtilities      CostCategory = "utilities"
	CostEquipment      CostCategory = "equipment"
	CostMaintenance    CostCategory = "maintenance"
	CostLabor          CostCategory = "labor"
	CostTransportation CostCategory = "transportation"
	CostMarketing      CostCategory = "marketing"
	CostRent           CostCategory = "rent"
	CostInsurance      CostCategory = "insurance"
	CostSupplies       CostCategory = "supplies"
	CostTesting        CostCategory = "testing"
	CostOther          CostCategory = "other"
)

func (c CostCategory) Valid() bool {
	switch c {
	case CostSubstrate, CostSpawn, CostSupplements, CostPackaging, CostUtilities, CostEquipment,
		CostMaintenance, CostLabor, CostTransportation, CostMarketing, CostRent, CostInsurance,
		CostSupplies, CostTesting, CostOther:
		return true
	}
	return false
}

type CostType string

const (
	CostDirect   CostType = "direct"
	CostIndirect CostType = "indirect"
	CostFixed    CostType = "fixed"
	CostVariable CostType = "variable"
)

func (c CostType) Valid() bool {
	switch c {
	case CostDirect, CostIndirect, CostFixed, CostVariable:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPaid      PaymentStatus = "paid"
	PaymentPending   PaymentStatus = "pending"
	PaymentPartial   PaymentStatus = "partial"
	PaymentOverdue   PaymentStatus = "overdue"
	PaymentCancelled PaymentStatus = "cancelled"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPaid, PaymentPending, PaymentPartial, PaymentOverdue, PaymentCancelled:
		return true
	}
	return false
}

type RevenueType string

const (
	RevenueMushroomSale  RevenueType = "mushroom_sale"
	RevenueSpawnSale     RevenueType = "spawn_sale"
	RevenueSubstrateSale RevenueType = "substrate_sale"
	RevenueConsulting    RevenueType = "consulting"
	RevenueTraining      RevenueType = "training"
	RevenueOther         RevenueType = "other"
)

func (r RevenueType) Valid() bool {
	switch r {
	case RevenueMushroomSale, RevenueSpawnSale, RevenueSubstrateSale, RevenueConsulting, RevenueTraining, RevenueOther:
		return true
	}
	return false
}

type CustomerType string

const (
	CustomerRetail      CustomerType = "retail"
	CustomerWholesale   CustomerType = "wholesale"
	CustomerRestaurant  CustomerType = "restaurant"
	CustomerDistributor CustomerType = "distributor"
	CustomerDirect      CustomerType = "direct"
	CustomerOther       CustomerType = "other"
)

func (c CustomerType) Valid() bool {
	switch c {
	case CustomerRetail, CustomerWholesale, CustomerRestaurant, CustomerDistributor, CustomerDirect, CustomerOther:
		return true
	}
	return false
}

type WorkType string

const (
	WorkRegular    WorkType = "regular"
	WorkOvertime   WorkType = "overtime"
	WorkWeekend    WorkType = "weekend"
	WorkHoliday    WorkType = "holiday"
	WorkNightShift WorkType = "night_shift"
)

func (w WorkType) Valid() bool {
	switch w {
	case WorkRegular, WorkOvertime, WorkWeekend, WorkHoliday, WorkNightShift:
		return true
	}
	return false
}

type WorkCategory string

const (
	WorkMonitoring     WorkCategory = "monitoring"
	WorkMaintenance    WorkCategory = "maintenance"
	WorkHarvesting     WorkCategory = "harvesting"
	WorkInoculation    WorkCategory = "inoculation"
	WorkCleaning       WorkCategory = "cleaning"
	WorkPacking        WorkCategory = "packing"
	WorkDelivery       WorkCategory = "delivery"
	WorkAdministrative WorkCategory = "administrative"
	WorkOther          WorkCategory = "other"
)

func (w WorkCategory) Valid() bool {
	switch w {
	case WorkMonitoring, WorkMaintenance, WorkHarvesting, WorkInoculation, WorkCleaning,
		WorkPacking, WorkDelivery, WorkAdministrative, WorkOther:
		return true
	}
	return false
}

type WorkLogStatus string

const (
	WorkLogActive    WorkLogStatus = "active"
	WorkLogCompleted WorkLogStatus = "completed"
	WorkLogApproved  WorkLogStatus = "approved"
)

func (w WorkLogStatus) Valid() bool {
	switch w {
	case WorkLogActive, WorkLogCompleted, WorkLogApproved:
		return true
	}
	return false
}

type AlertType string

const (
	AlertEnvironmental   AlertType = "environmental"
	AlertBatchMilestone  AlertType = "batch_milestone"
	AlertEquipment       AlertType = "equipment"
	AlertSystem          AlertType = "system"
	AlertHarvestReminder AlertType = "harvest_reminder"
	AlertInventory       AlertType = "inventory"
	AlertQuality         AlertType = "quality"
	AlertWarning         AlertType = "warning"
	AlertError           AlertType = "error"
)

func (a AlertType) Valid() bool {
	switch a {
	case AlertEnvironmental, AlertBatchMilestone, AlertEquipment, AlertSystem, AlertHarvestReminder, AlertInventory, AlertQuality, AlertWarning, AlertError:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type AlertStatus string

const (
	AlertUnread       AlertStatus = "unread"
	AlertRead         AlertStatus = "read"
	AlertDismissed    AlertStatus = "dismissed"
	AlertAcknowledged AlertStatus = "acknowledged"
)

func (a AlertStatus) Valid() bool {
	switch a {
	case AlertUnread, AlertRead, AlertDismissed, AlertAcknowledged:
		return true
	}
	return false
}

type InventoryCategory string

const (
	InventorySubstrate   InventoryCategory = "substrate"
	InventorySpawn       InventoryCategory = "spawn"
	InventoryConsumables InventoryCategory = "consumables"
	InventoryPackaging   InventoryCategory = "packaging"
	InventoryChemicals   InventoryCategory = "chemicals"
	InventoryEquipment   InventoryCategory = "equipment"
	InventoryOther       InventoryCategory = "other"
)

func (c InventoryCategory) Valid() bool {
	switch c {
	case InventorySubstrate, InventorySpawn, InventoryConsumables, InventoryPackaging, InventoryChemicals, InventoryEquipment, InventoryOther:
		return true
	}
	return false
}

type TransactionType string

const (
	TransactionPurchase         TransactionType = "purchase"
	TransactionUsage            TransactionType = "usage"
	TransactionWaste            TransactionType = "waste"
	TransactionAdjustmentAdd    TransactionType = "adjustment_add"
	TransactionAdjustmentRemove TransactionType = "adjustment_remove"
	TransactionTransfer         TransactionType = "transfer"
	TransactionReturn           TransactionType = "return"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionPurchase, TransactionUsage, TransactionWaste, TransactionAdjustmentAdd, TransactionAdjustmentRemove, TransactionTransfer, TransactionReturn:
		return true
	}
	return false
}

// Removes reports if a transaction of this type takes stock out of inventory.
func (t TransactionType) Removes() bool {
	switch t {
	case TransactionUsage, TransactionWaste, TransactionAdjustmentRemove:
		return true
	}
	return false
}

// Restocks reports if a transaction of this type counts as a restock.
func (t TransactionType) Restocks() bool {
	return t == TransactionPurchase || t == TransactionAdjustmentAdd
}

type CheckType string

const (
	CheckPreHarvest    CheckType = "pre_harvest"
	CheckHarvest       CheckType = "harvest"
	CheckPostHarvest   CheckType = "post_harvest"
	CheckPackaging     CheckType = "packaging"
	CheckPreShipment   CheckType = "pre_shipment"
	CheckSubstrate     CheckType = "substrate"
	CheckSpawn         CheckType = "spawn"
	CheckEnvironmental CheckType = "environmental"
	CheckEquipment     CheckType = "equipment"
	CheckFacility      CheckType = "facility"
	CheckIncoming      CheckType = "incoming"
	CheckRoutine       CheckType = "routine"
)

func (c CheckType) Valid() bool {
	switch c {
	case CheckPreHarvest, CheckHarvest, CheckPostHarvest, CheckPackaging, CheckPreShipment, CheckSubstrate,
		CheckSpawn, CheckEnvironmental, CheckEquipment, CheckFacility, CheckIncoming, CheckRoutine:
		return true
	}
	return false
}

type InspectionGrade string

const (
	InspectionAPlus  InspectionGrade = "A+"
	InspectionA      InspectionGrade = "A"
	InspectionB      InspectionGrade = "B"
	InspectionC      InspectionGrade = "C"
	InspectionReject InspectionGrade = "Reject"
)

func (g InspectionGrade) Valid() bool {
	switch g {
	case InspectionAPlus, InspectionA, InspectionB, InspectionC, InspectionReject:
		return true
	}
	return false
}

// GradeForScore maps a 0-100 quality score onto an inspection grade.
func GradeForScore(score int) InspectionGrade {
	switch {
	case score >= 95:
		return InspectionAPlus
	case score >= 85:
		return InspectionA
	case score >= 70:
		return InspectionB
	case score >= 50:
		return InspectionC
	}
	return InspectionReject
}

type PassStatus string

const (
	Pass            PassStatus = "pass"
	ConditionalPass PassStatus = "conditional_pass"
	Fail            PassStatus = "fail"
)

func (p PassStatus) Valid() bool {
	switch p {
	case Pass, ConditionalPass, Fail:
		return true
	}
	return false
}

type CheckStatus string

const (
	CheckDraft     CheckStatus = "draft"
	CheckSubmitted CheckStatus = "submitted"
	CheckReviewed  CheckStatus = "reviewed"
	CheckApproved  CheckStatus = "approved"
	CheckRejected  CheckStatus = "rejected"
)

func (c CheckStatus) Valid() bool {
	switch c {
	case CheckDraft, CheckSubmitted, CheckReviewed, CheckApproved, CheckRejected:
		return true
	}
	return false
}

// IsFinal reports if a review has closed the check.
func (c CheckStatus) IsFinal() bool {
	return c == CheckApproved || c == CheckRejected
}

type DefectSeverity string

const (
	DefectCritical DefectSeverity = "critical"
	DefectMajor    DefectSeverity = "major"
	DefectMinor    DefectSeverity = "minor"
	DefectCosmetic DefectSeverity = "cosmetic"
)

func (d DefectSeverity) Valid() bool {
	switch d {
	case DefectCritical, DefectMajor, DefectMinor, DefectCosmetic:
		return true
	}
	return false
}

type DefectCategory string

const (
	DefectVisual        DefectCategory = "visual"
	DefectPhysical      DefectCategory = "physical"
	DefectContamination DefectCategory = "contamination"
	DefectPackaging     DefectCategory = "packaging"
	DefectCompliance    DefectCategory = "compliance"
)

func (d DefectCategory) Valid() bool {
	switch d {
	case DefectVisual, DefectPhysical, DefectContamination, DefectPackaging, DefectCompliance:
		return true
	}
	return false
}

type Marketability string

const (
	Marketable Marketability = "marketable"
	Downgrade  Marketability = "downgrade"
	Reject     Marketability = "reject"
)

func (m Marketability) Valid() bool {
	switch m {
	case Marketable, Downgrade, Reject:
		return true
	}
	return false
}

type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionInProgress ActionStatus = "in_progress"
	ActionCompleted  ActionStatus = "completed"
	ActionVerified   ActionStatus = "verified"
)

func (a ActionStatus) Valid() bool {
	switch a {
	case ActionPending, ActionInProgress, ActionCompleted, ActionVerified:
		return true
	}
	return false
}

type StandardCategory string

const (
	StandardProductQuality StandardCategory = "product_quality"
	StandardFoodSafety     StandardCategory = "food_safety"
	StandardEnvironmental  StandardCategory = "environmental"
	StandardFacility       StandardCategory = "facility"
	StandardEquipment      StandardCategory = "equipment"
	StandardPersonnel      StandardCategory = "personnel"
	StandardDocumentation  StandardCategory = "documentation"
	StandardTraceability   StandardCategory = "traceability"
)

func (s StandardCategory) Valid() bool {
	switch s {
	case StandardProductQuality, StandardFoodSafety, StandardEnvironmental, StandardFacility,
		StandardEquipment, StandardPersonnel, StandardDocumentation, StandardTraceability:
		return true
	}
	return false
}

type StandardStatus string

const (
	StandardDraft       StandardStatus = "draft"
	StandardActive      StandardStatus = "active"
	StandardUnderReview StandardStatus = "under_review"
	StandardArchived    StandardStatus = "archived"
	StandardExpired     StandardStatus = "expired"
)

func (s StandardStatus) Valid() bool {
	switch s {
	case StandardDraft, StandardActive, StandardUnderReview, StandardArchived, StandardExpired:
		return true
	}
	return false
}
