package equipment

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	repository "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/equipment"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/zones"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/samber/lo"
)

// Seed reads zones and their equipment from a ';' separated file with the columns
//
//	tenant;zoneNumber;zoneName;deviceId;name;type;controlType;pin;minValue;maxValue
//
// The first row is a header. Zones are matched on zone number and created when
// missing, equipment already known by device and name is left untouched.
func Seed(ctx context.Context, z zones.ZoneRepository, r repository.EquipmentRepository, equipment io.ReadCloser, validTenants []string) error {
	logger := logging.GetFromContext(ctx)
	defer equipment.Close()

	reader := csv.NewReader(equipment)
	reader.Comma = ';'

	rows, err := reader.ReadAll()
	if err != nil {
		return err
	}

	records, err := getRecordsFromRows(rows)
	if err != nil {
		return err
	}

	logger.Info().Msgf("loaded %d equipment records from file", len(records))

	created := 0

	for _, record := range records {
		if !lo.Contains(validTenants, record.tenant) {
			logger.Warn().Str("tenant", record.tenant).Msgf("tenant not allowed, skipping %s", record.name)
			continue
		}

		zone, err := z.GetByNumber(ctx, record.zoneNumber, record.tenant)
		if errors.Is(err, database.ErrNotFound) {
			zone = models.Zone{
				OrganizationID: record.tenant,
				Name:           record.zoneName,
				ZoneNumber:     record.zoneNumber,
				Status:         types.ZoneIdle,
			}
			err = z.Save(ctx, &zone)
		}
		if err != nil {
			return fmt.Errorf("could not seed zone %s: %w", record.zoneNumber, err)
		}

		_, err = r.GetByDeviceAndName(ctx, record.deviceID, record.name)
		if err == nil {
			continue
		}
		if !errors.Is(err, database.ErrNotFound) {
			return err
		}

		eq := record.mapToEquipment(zone)

		err = validate(eq)
		if err != nil {
			return fmt.Errorf("invalid equipment %s: %w", record.name, err)
		}

		err = r.Save(ctx, &eq)
		if err != nil {
			return err
		}
		created++
	}

	logger.Info().Msgf("seeded %d new pieces of equipment", created)

	return nil
}

type equipmentRecord struct {
	tenant      string
	zoneNumber  string
	zoneName    string
	deviceID    string
	name        string
	typ         types.EquipmentType
	controlType types.ControlType
	pin         string
	minValue    float64
	maxValue    float64
}

func (r equipmentRecord) mapToEquipment(zone models.Zone) models.Equipment {
	return models.Equipment{
		OrganizationID: zone.OrganizationID,
		ZoneID:         zone.ID,
		DeviceID:       r.deviceID,
		Name:           r.name,
		Type:           r.typ,
		ControlType:    r.controlType,
		Pin:            r.pin,
		Status:         types.EquipmentOff,
		Mode:           types.ModeAuto,
		MinValue:       r.minValue,
		MaxValue:       r.maxValue,
		CurrentValue:   r.minValue,
		IsActive:       true,
	}
}

func getRecordsFromRows(rows [][]string) ([]equipmentRecord, error) {
	records := []equipmentRecord{}

	for i, row := range rows {
		if i == 0 {
			continue
		}

		if len(row) != 10 {
			return nil, fmt.Errorf("row %d has %d columns, expected 10", i+1, len(row))
		}

		for j := range row {
			row[j] = strings.TrimSpace(row[j])
		}

		minValue, err := parseFloat(row[8], 0)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid min value: %w", i+1, err)
		}

		maxValue, err := parseFloat(row[9], 100)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid max value: %w", i+1, err)
		}

		controlType := types.ControlType(row[6])
		if controlType == "" {
			controlType = types.ControlRelay
		}

		zoneName := row[2]
		if zoneName == "" {
			zoneName = row[1]
		}

		records = append(records, equipmentRecord{
			tenant:      row[0],
			zoneNumber:  row[1],
			zoneName:    zoneName,
			deviceID:    row[3],
			name:        row[4],
			typ:         types.EquipmentType(row[5]),
			controlType: controlType,
			pin:         row[7],
			minValue:    minValue,
			maxValue:    maxValue,
		})
	}

	return records, nil
}

func parseFloat(s string, def float64) (float64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}
