/*
scenarios_test.go - Tests for the demo scenario loaders

Each scenario must leave the store in a state where the stored counters
agree with the rows they derive from; the drift auditor is the oracle.
*/
package api

import (
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *testServer) loadScenario(t *testing.T, id string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": id}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (s *testServer) partByNumber(t *testing.T, number string) PartDTO {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/api/parts", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, part := range decode[[]PartDTO](t, rec) {
		if part.PartNumber == number {
			return part
		}
	}
	t.Fatalf("part %s not in catalog", number)
	return PartDTO{}
}

func TestScenario_WorkshopCatalog(t *testing.T) {
	// GIVEN: A fresh server
	// WHEN: The catalog scenario loads twice
	// THEN: Six parts, not twelve

	s := newTestServer(t)
	s.loadScenario(t, "workshop-catalog")
	s.loadScenario(t, "workshop-catalog")

	rec := s.do(t, http.MethodGet, "/api/parts", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PartDTO](t, rec), 6)

	filter := s.partByNumber(t, "OF-1042")
	assert.Equal(t, "Oil Filter", filter.Name)
	assert.Equal(t, 0, filter.QtyInStock)
}

func TestScenario_InboundDelivery(t *testing.T) {
	// GIVEN: The inbound-delivery scenario
	// WHEN: Counters are inspected
	// THEN: Pads fully on order, discs partially received, header partial

	s := newTestServer(t)
	s.loadScenario(t, "inbound-delivery")

	pads := s.partByNumber(t, "BP-2200F")
	assert.Equal(t, 10, pads.QtyOnOrder)
	assert.Equal(t, 0, pads.QtyInStock)

	discs := s.partByNumber(t, "BD-2201F")
	assert.Equal(t, 4, discs.QtyOnOrder)
	assert.Equal(t, 2, discs.QtyInStock)

	rec := s.do(t, http.MethodGet, "/api/deliveries", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	deliveries := decode[[]DeliveryDTO](t, rec)
	require.Len(t, deliveries, 1)
	assert.Equal(t, "EP-88112", deliveries[0].OrderReference)
	assert.Equal(t, "partially_received", deliveries[0].Status)
}

func TestScenario_BusyJob(t *testing.T) {
	// GIVEN: The busy-job scenario
	// WHEN: The job's parts and the counters are inspected
	// THEN: One allocation, one awaiting stock, one authorised VHC row

	s := newTestServer(t)
	s.loadScenario(t, "busy-job")

	rec := s.do(t, http.MethodGet, "/api/jobs/JOB-5512/parts", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	jobParts := decode[[]JobPartDTO](t, rec)
	require.Len(t, jobParts, 3)

	byStatus := map[string]JobPartDTO{}
	for _, jp := range jobParts {
		byStatus[jp.Status] = jp
	}
	assert.Equal(t, 1, byStatus["allocated"].QuantityAllocated)
	assert.Equal(t, "from_stock", byStatus["allocated"].Provenance)

	var vhc JobPartDTO
	for _, jp := range jobParts {
		if jp.Origin == "vhc" {
			vhc = jp
		}
	}
	assert.Equal(t, "vhc-3301", vhc.VHCItemID)
	assert.True(t, vhc.Authorised)

	// filter: 12 received, 1 allocated
	filter := s.partByNumber(t, "OF-1042")
	assert.Equal(t, 11, filter.QtyInStock)
	assert.Equal(t, 1, filter.QtyReserved)

	// blades: 8 received, 2 reserved by authorisation, nothing allocated
	blades := s.partByNumber(t, "WB-0090")
	assert.Equal(t, 8, blades.QtyInStock)
	assert.Equal(t, 2, blades.QtyReserved)
}

func TestScenario_CountersSurviveTheAuditor(t *testing.T) {
	// GIVEN: Every scenario loaded on top of each other
	// WHEN: A drift audit runs
	// THEN: Nothing to report; the seeds went through the real managers

	s := newTestServer(t)
	for _, id := range []string{"workshop-catalog", "inbound-delivery", "busy-job"} {
		s.loadScenario(t, id)
	}

	auditor := NewDriftAuditor(s.store, s.store, zerolog.Nop())
	run, err := auditor.RunNow()
	require.NoError(t, err)
	assert.Equal(t, 0, run.DriftFound, "findings: %+v", run.Findings)

	rec := s.do(t, http.MethodGet, "/api/scenarios/current", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "busy-job", decode[ScenarioDTO](t, rec).ID)
}
