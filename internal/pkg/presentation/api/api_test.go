package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/diwise/farm-operations/internal/pkg/application/alerts"
	"github.com/diwise/farm-operations/internal/pkg/application/batches"
	"github.com/diwise/farm-operations/internal/pkg/application/equipment"
	"github.com/diwise/farm-operations/internal/pkg/application/events"
	"github.com/diwise/farm-operations/internal/pkg/application/executions"
	"github.com/diwise/farm-operations/internal/pkg/application/finance"
	"github.com/diwise/farm-operations/internal/pkg/application/harvests"
	"github.com/diwise/farm-operations/internal/pkg/application/inventory"
	"github.com/diwise/farm-operations/internal/pkg/application/labor"
	"github.com/diwise/farm-operations/internal/pkg/application/profitability"
	"github.com/diwise/farm-operations/internal/pkg/application/quality"
	"github.com/diwise/farm-operations/internal/pkg/application/recipes"
	"github.com/diwise/farm-operations/internal/pkg/application/webevents"
	"github.com/diwise/farm-operations/internal/pkg/application/zones"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	alertDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/alerts"
	batchDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/batches"
	equipmentDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/equipment"
	executionDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/executions"
	financeDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/finance"
	harvestDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/harvests"
	inventoryDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/inventory"
	laborDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/labor"
	profitabilityDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/profitability"
	qualityDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/quality"
	recipeDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/recipes"
	zoneDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/zones"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/router"
	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/go-chi/chi/v5"
	"github.com/matryer/is"
)

var (
	readOnly = []string{"farm.read"}
	writer   = []string{"farm.read", "farm.write"}
	operator = []string{"farm.read", "farm.write", "equipment.control"}
)

func TestHealthAndMetrics(t *testing.T) {
	is, mux, _ := testSetup(t)

	rec := call(mux, http.MethodGet, "/health", "", "")
	is.Equal(http.StatusNoContent, rec.Code)

	rec = call(mux, http.MethodGet, "/metrics", "", "")
	is.Equal(http.StatusOK, rec.Code)
}

func TestThatRequestsWithoutTokenAreUnauthorized(t *testing.T) {
	is, mux, _ := testSetup(t)

	rec := call(mux, http.MethodGet, "/api/v0/zones", "", "")
	is.Equal(http.StatusUnauthorized, rec.Code)
}

func TestThatReadOnlyTokenCannotWrite(t *testing.T) {
	is, mux, _ := testSetup(t)

	rec := call(mux, http.MethodPost, "/api/v0/zones", token(readOnly, "default"), `{"name":"Grow room 1"}`)
	is.Equal(http.StatusUnauthorized, rec.Code)

	rec = call(mux, http.MethodGet, "/api/v0/zones", token(readOnly, "default"), "")
	is.Equal(http.StatusOK, rec.Code)
}

func TestCreateAndGetZone(t *testing.T) {
	is, mux, _ := testSetup(t)
	tok := token(writer, "default")

	rec := call(mux, http.MethodPost, "/api/v0/zones", tok, `{"name":"Grow room 1","zoneNumber":"GR1"}`)
	is.Equal(http.StatusCreated, rec.Code)

	zone := struct {
		ID             string `json:"id"`
		OrganizationID string `json:"organizationId"`
		Status         string `json:"status"`
	}{}
	data(is, rec, &zone)
	is.True(zone.ID != "")
	is.Equal("default", zone.OrganizationID)
	is.Equal("idle", zone.Status)

	rec = call(mux, http.MethodGet, "/api/v0/zones/"+zone.ID, tok, "")
	is.Equal(http.StatusOK, rec.Code)

	rec = call(mux, http.MethodGet, "/api/v0/zones/unknown", tok, "")
	is.Equal(http.StatusNotFound, rec.Code)

	rec = call(mux, http.MethodGet, "/api/v0/zones/"+zone.ID, token(readOnly, "other"), "")
	is.Equal(http.StatusNotFound, rec.Code)
}

func TestThatZonesCannotBeCreatedInOtherTenants(t *testing.T) {
	is, mux, _ := testSetup(t)

	rec := call(mux, http.MethodPost, "/api/v0/zones", token(writer, "default"), `{"name":"Grow room 1","organizationId":"other"}`)
	is.Equal(http.StatusForbidden, rec.Code)

	rec = call(mux, http.MethodPost, "/api/v0/zones", token(writer, "default", "other"), `{"name":"Grow room 1"}`)
	is.Equal(http.StatusBadRequest, rec.Code)
}

func TestThatInvalidInputIsBadRequest(t *testing.T) {
	is, mux, _ := testSetup(t)
	tok := token(writer, "default")

	rec := call(mux, http.MethodPost, "/api/v0/recipes", tok, `{"cropId":"oyster","cropName":"Oyster","cropType":"mushroom","stages":[]}`)
	is.Equal(http.StatusBadRequest, rec.Code)

	rec = call(mux, http.MethodPost, "/api/v0/recipes", tok, `{not json`)
	is.Equal(http.StatusBadRequest, rec.Code)

	rec = call(mux, http.MethodGet, "/api/v0/zones?limit=-1", tok, "")
	is.Equal(http.StatusBadRequest, rec.Code)
}

func TestStartExecution(t *testing.T) {
	is, mux, publisher := testSetup(t)
	tok := token(operator, "default")

	zoneID := create(is, mux, tok, "/api/v0/zones", `{"name":"Grow room 1","zoneNumber":"GR1"}`)
	recipeID := create(is, mux, tok, "/api/v0/recipes", recipeJSON)
	create(is, mux, tok, "/api/v0/equipment", `{"zoneId":"`+zoneID+`","name":"fan-1","deviceId":"gw-01","type":"fan","controlType":"pwm"}`)

	rec := call(mux, http.MethodPost, "/api/v0/executions", tok, `{"zoneId":"`+zoneID+`","recipeId":"`+recipeID+`"}`)
	is.Equal(http.StatusCreated, rec.Code)

	execution := struct {
		ID      string `json:"id"`
		Status  string `json:"status"`
		OwnerID string `json:"ownerId"`
	}{}
	data(is, rec, &execution)
	is.Equal("active", execution.Status)
	is.Equal("grower", execution.OwnerID)

	// one command for the fan and one stage change
	is.Equal(2, len(publisher.published))

	rec = call(mux, http.MethodPost, "/api/v0/executions", tok, `{"zoneId":"`+zoneID+`","recipeId":"`+recipeID+`"}`)
	is.Equal(http.StatusConflict, rec.Code)

	rec = call(mux, http.MethodGet, "/api/v0/executions/"+execution.ID+"/progress", tok, "")
	is.Equal(http.StatusOK, rec.Code)

	rec = call(mux, http.MethodPost, "/api/v0/executions/"+execution.ID+"/resume", tok, "")
	is.Equal(http.StatusConflict, rec.Code)

	rec = call(mux, http.MethodPost, "/api/v0/executions/"+execution.ID+"/abort", tok, `{"reason":"contamination"}`)
	is.Equal(http.StatusOK, rec.Code)
}

func TestEquipmentControlRequiresControlScope(t *testing.T) {
	is, mux, publisher := testSetup(t)
	tok := token(operator, "default")

	zoneID := create(is, mux, tok, "/api/v0/zones", `{"name":"Grow room 1"}`)
	equipmentID := create(is, mux, tok, "/api/v0/equipment", `{"zoneId":"`+zoneID+`","name":"heater-1","deviceId":"gw-01","type":"heater"}`)

	rec := call(mux, http.MethodPost, "/api/v0/equipment/"+equipmentID+"/on", token(writer, "default"), "")
	is.Equal(http.StatusUnauthorized, rec.Code)
	is.Equal(0, len(publisher.published))

	rec = call(mux, http.MethodPost, "/api/v0/equipment/"+equipmentID+"/on", tok, "")
	is.Equal(http.StatusCreated, rec.Code)
	is.Equal(1, len(publisher.published))

	cmd := struct {
		ID     string  `json:"id"`
		Status string  `json:"status"`
		UserID *string `json:"userId"`
	}{}
	data(is, rec, &cmd)
	is.Equal("sent", cmd.Status)
	is.Equal("grower", *cmd.UserID)

	rec = call(mux, http.MethodPost, "/api/v0/equipment/"+equipmentID+"/value", tok, `{"value":500}`)
	is.Equal(http.StatusBadRequest, rec.Code)

	rec = call(mux, http.MethodPatch, "/api/v0/commands/"+cmd.ID, tok, `{"status":"completed"}`)
	is.Equal(http.StatusOK, rec.Code)

	rec = call(mux, http.MethodPatch, "/api/v0/commands/"+cmd.ID, tok, `{"status":"sent"}`)
	is.Equal(http.StatusConflict, rec.Code)

	rec = call(mux, http.MethodGet, "/api/v0/equipment/"+equipmentID+"/commands", tok, "")
	is.Equal(http.StatusOK, rec.Code)
	is.Equal(1, total(is, rec))
}

func TestPagingLinks(t *testing.T) {
	is, mux, _ := testSetup(t)
	tok := token(writer, "default")

	for _, name := range []string{"GR1", "GR2", "GR3"} {
		create(is, mux, tok, "/api/v0/zones", `{"name":"`+name+`"}`)
	}

	rec := call(mux, http.MethodGet, "/api/v0/zones?limit=2", tok, "")
	is.Equal(http.StatusOK, rec.Code)

	response := struct {
		Meta  meta            `json:"meta"`
		Data  json.RawMessage `json:"data"`
		Links links           `json:"links"`
	}{}
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &response))

	is.Equal(uint64(3), response.Meta.TotalRecords)
	is.Equal(uint64(2), response.Meta.Count)
	is.True(response.Links.Prev == nil)
	is.Equal("/api/v0/zones?limit=2&offset=2", *response.Links.Next)
	is.Equal("/api/v0/zones?limit=2&offset=2", *response.Links.Last)
}

func TestQueryCostsByCategory(t *testing.T) {
	is, mux, _ := testSetup(t)
	tok := token(writer, "default")

	create(is, mux, tok, "/api/v0/costs", `{"category":"substrate","description":"straw","amount":120,"quantity":40,"unit":"kg"}`)
	create(is, mux, tok, "/api/v0/costs", `{"category":"utilities","description":"heating","amount":80}`)

	rec := call(mux, http.MethodGet, "/api/v0/costs?category=substrate", tok, "")
	is.Equal(http.StatusOK, rec.Code)

	response := struct {
		Meta struct {
			TotalRecords uint64 `json:"totalRecords"`
		} `json:"meta"`
		Data []struct {
			Category string   `json:"category"`
			UnitCost *float64 `json:"unitCost"`
		} `json:"data"`
	}{}
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &response))

	is.Equal(uint64(1), response.Meta.TotalRecords)
	is.Equal("substrate", response.Data[0].Category)
	is.Equal(3.0, *response.Data[0].UnitCost)
}

func TestWorkLogClockInAndOut(t *testing.T) {
	is, mux, _ := testSetup(t)
	tok := token(writer, "default")

	id := create(is, mux, tok, "/api/v0/worklogs/clock-in", `{"category":"harvesting","hourlyRate":20}`)

	rec := call(mux, http.MethodPost, "/api/v0/worklogs/clock-in", tok, `{"category":"harvesting"}`)
	is.Equal(http.StatusConflict, rec.Code)

	rec = call(mux, http.MethodPost, "/api/v0/worklogs/"+id+"/clock-out", tok, "")
	is.Equal(http.StatusOK, rec.Code)

	rec = call(mux, http.MethodPost, "/api/v0/worklogs/"+id+"/approve", tok, "")
	is.Equal(http.StatusOK, rec.Code)
}

func TestProfitabilityOverview(t *testing.T) {
	is, mux, _ := testSetup(t)
	tok := token(writer, "default")

	create(is, mux, tok, "/api/v0/revenues", `{"productName":"Oyster","quantity":10,"pricePerUnit":20}`)
	create(is, mux, tok, "/api/v0/costs", `{"category":"substrate","description":"straw","amount":50}`)

	rec := call(mux, http.MethodGet, "/api/v0/profitability", tok, "")
	is.Equal(http.StatusOK, rec.Code)

	summary := struct {
		Revenue      float64 `json:"revenue"`
		GrossProfit  float64 `json:"grossProfit"`
		ProfitMargin float64 `json:"profitMargin"`
		ROI          float64 `json:"roi"`
	}{}
	data(is, rec, &summary)
	is.Equal(200.0, summary.Revenue)
	is.Equal(150.0, summary.GrossProfit)
	is.Equal(75.0, summary.ProfitMargin)
	is.Equal(300.0, summary.ROI)

	rec = call(mux, http.MethodGet, "/api/v0/profitability/trends?period=fortnight", tok, "")
	is.Equal(http.StatusBadRequest, rec.Code)

	rec = call(mux, http.MethodGet, "/api/v0/profitability/compare?batchIds=a", tok, "")
	is.Equal(http.StatusBadRequest, rec.Code)
}

func TestInventoryAdjustAndLowStock(t *testing.T) {
	is, mux, _ := testSetup(t)
	tok := token(writer, "default")

	id := create(is, mux, tok, "/api/v0/inventory", `{"name":"Oyster spawn","category":"spawn","unit":"kg","currentStock":10,"minStockLevel":5,"unitCost":4}`)

	rec := call(mux, http.MethodPost, "/api/v0/inventory/"+id+"/adjust", token(readOnly, "default"), `{"type":"usage","quantity":-6}`)
	is.Equal(http.StatusForbidden, rec.Code)

	rec = call(mux, http.MethodPost, "/api/v0/inventory/"+id+"/adjust", tok, `{"type":"usage","quantity":-6}`)
	is.Equal(http.StatusCreated, rec.Code)

	adjusted := struct {
		Item struct {
			CurrentStock float64 `json:"currentStock"`
			TotalValue   float64 `json:"totalValue"`
		} `json:"item"`
	}{}
	data(is, rec, &adjusted)
	is.Equal(4.0, adjusted.Item.CurrentStock)
	is.Equal(16.0, adjusted.Item.TotalValue)

	rec = call(mux, http.MethodPost, "/api/v0/inventory/"+id+"/adjust", tok, `{"type":"usage","quantity":-10}`)
	is.Equal(http.StatusBadRequest, rec.Code)

	rec = call(mux, http.MethodGet, "/api/v0/inventory/low-stock", tok, "")
	is.Equal(http.StatusOK, rec.Code)
	low := []struct {
		ID string `json:"id"`
	}{}
	data(is, rec, &low)
	is.Equal(1, len(low))

	rec = call(mux, http.MethodGet, "/api/v0/inventory/"+id+"/transactions", tok, "")
	is.Equal(http.StatusOK, rec.Code)
	is.Equal(1, total(is, rec))
}

func TestQualityCheckReviewAndEvaluation(t *testing.T) {
	is, mux, _ := testSetup(t)
	tok := token(writer, "default")

	checkID := create(is, mux, tok, "/api/v0/quality/checks", `{"checkType":"harvest","inspectorName":"Inspector","defectRate":10}`)

	rec := call(mux, http.MethodGet, "/api/v0/quality/checks/"+checkID, tok, "")
	is.Equal(http.StatusOK, rec.Code)
	check := struct {
		QualityScore int    `json:"qualityScore"`
		OverallGrade string `json:"overallGrade"`
	}{}
	data(is, rec, &check)
	is.Equal(95, check.QualityScore)
	is.Equal("A+", check.OverallGrade)

	standardID := create(is, mux, tok, "/api/v0/quality/standards", `{"name":"Export","category":"product_quality","criteria":{"maxDefectRate":5}}`)

	rec = call(mux, http.MethodGet, "/api/v0/quality/standards/"+standardID+"/evaluate?checkId="+checkID, tok, "")
	is.Equal(http.StatusOK, rec.Code)
	evaluation := struct {
		Meets      bool     `json:"meets"`
		Violations []string `json:"violations"`
	}{}
	data(is, rec, &evaluation)
	is.True(!evaluation.Meets)
	is.Equal(1, len(evaluation.Violations))

	rec = call(mux, http.MethodPost, "/api/v0/quality/checks/"+checkID+"/review", tok, `{"status":"approved"}`)
	is.Equal(http.StatusOK, rec.Code)

	rec = call(mux, http.MethodPatch, "/api/v0/quality/checks/"+checkID, tok, `{"notes":"late"}`)
	is.Equal(http.StatusConflict, rec.Code)
}

const recipeJSON string = `{
	"cropId": "oyster",
	"cropName": "Oyster",
	"cropType": "mushroom",
	"stages": [
		{"name": "incubation", "duration": 14, "environmental": {"co2": {"min": 5000, "max": 20000, "optimal": 10000}}},
		{"name": "fruiting", "duration": 7}
	]
}`

type publisherMock struct {
	published []messaging.TopicMessage
}

func (p *publisherMock) PublishOnTopic(ctx context.Context, message messaging.TopicMessage) error {
	p.published = append(p.published, message)
	return nil
}

func call(mux *chi.Mux, method, path, tok, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, r)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	return rec
}

func create(is *is.I, mux *chi.Mux, tok, path, body string) string {
	rec := call(mux, http.MethodPost, path, tok, body)
	is.Equal(http.StatusCreated, rec.Code)

	created := struct {
		ID string `json:"id"`
	}{}
	data(is, rec, &created)

	return created.ID
}

func data(is *is.I, rec *httptest.ResponseRecorder, v any) {
	response := struct {
		Data json.RawMessage `json:"data"`
	}{}
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &response))
	is.NoErr(json.Unmarshal(response.Data, v))
}

func total(is *is.I, rec *httptest.ResponseRecorder) int {
	response := struct {
		Meta meta `json:"meta"`
	}{}
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &response))
	return int(response.Meta.TotalRecords)
}

func token(scopes []string, tenants ...string) string {
	enc := base64.RawURLEncoding

	header, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	payload, _ := json.Marshal(map[string]any{"sub": "grower", "tenants": tenants, "scopes": scopes})

	return enc.EncodeToString(header) + "." + enc.EncodeToString(payload) + "." + enc.EncodeToString([]byte("signature"))
}

func testSetup(t *testing.T) (*is.I, *chi.Mux, *publisherMock) {
	is := is.New(t)
	ctx := context.Background()
	connect := database.NewSQLiteConnector(ctx)

	zr, err := zoneDb.NewZoneRepository(connect)
	is.NoErr(err)
	rr, err := recipeDb.NewRecipeRepository(connect)
	is.NoErr(err)
	br, err := batchDb.NewBatchRepository(connect)
	is.NoErr(err)
	er, err := executionDb.NewExecutionRepository(connect)
	is.NoErr(err)
	eqr, err := equipmentDb.NewEquipmentRepository(connect)
	is.NoErr(err)
	hr, err := harvestDb.NewHarvestRepository(connect)
	is.NoErr(err)
	fr, err := financeDb.NewFinanceRepository(connect)
	is.NoErr(err)
	wr, err := laborDb.NewWorkLogRepository(connect)
	is.NoErr(err)
	ar, err := alertDb.NewAlertRepository(connect)
	is.NoErr(err)
	pr, err := profitabilityDb.NewProfitabilityRepository(connect)
	is.NoErr(err)
	ir, err := inventoryDb.NewInventoryRepository(connect)
	is.NoErr(err)
	qr, err := qualityDb.NewQualityRepository(connect)
	is.NoErr(err)

	publisher := &publisherMock{}
	feed := webevents.New(nil)
	t.Cleanup(feed.Shutdown)

	alertSvc := alerts.New(ar, events.New(nil), feed)
	batchSvc := batches.New(br, zr, rr, hr, alertSvc, feed)
	equipmentSvc := equipment.New(eqr, zr, publisher, alertSvc, feed, equipment.DefaultCommandTimeout)

	app := Services{
		Zones:      zones.New(zr),
		Recipes:    recipes.New(rr),
		Batches:    batchSvc,
		Executions: executions.New(er, zr, rr, batchSvc, equipmentSvc, publisher, alertSvc, feed),
		Equipment:  equipmentSvc,
		Harvests:   harvests.New(hr, batchSvc, zr, rr),
		Finance:    finance.New(fr),
		Labor:      labor.New(wr),
		Alerts:     alertSvc,
		Feed:       feed,

		Profitability: profitability.New(pr, br),
		Inventory:     inventory.New(ir, alertSvc, feed),
		Quality:       quality.New(qr, alertSvc, feed),
	}

	policies, err := os.Open("../../../../assets/config/authz.rego")
	is.NoErr(err)
	defer policies.Close()

	mux, err := RegisterHandlers(ctx, router.New("farm-operations", router.NewCORS([]string{"*"})), policies, app)
	is.NoErr(err)

	return is, mux, publisher
}
