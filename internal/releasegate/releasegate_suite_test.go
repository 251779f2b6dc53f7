package releasegate

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/flyingrobots/reliability-control-plane/internal/burnrate"
	"github.com/flyingrobots/reliability-control-plane/internal/config"
	"github.com/flyingrobots/reliability-control-plane/internal/forecast"
	"github.com/flyingrobots/reliability-control-plane/internal/model"
	"github.com/flyingrobots/reliability-control-plane/internal/slo"
	"github.com/flyingrobots/reliability-control-plane/internal/store"
)

func TestReleaseGateDecisionTable(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Release Gate Decision Table Suite")
}

func newGinkgoTestGate() (*Gate, store.Store, *model.Service) {
	st := store.NewMemoryStore()
	cfg := config.DefaultConfig()
	svc, err := st.UpsertService(context.Background(), "checkout-service")
	Expect(err).NotTo(HaveOccurred())

	sloEngine := slo.New(st)
	Expect(sloEngine.SeedDefaults(context.Background(), svc.ID)).To(Succeed())

	burnEngine := burnrate.New(st, cfg, nil)
	forecastEngine := forecast.New(st, sloEngine)
	gate := New(st, burnEngine, sloEngine, forecastEngine, cfg)
	return gate, st, svc
}

var _ = Describe("Gate.CheckRelease", func() {
	var (
		gate *Gate
		st   store.Store
		svc  *model.Service
	)

	BeforeEach(func() {
		gate, st, svc = newGinkgoTestGate()
	})

	seed := func(totalReq, errs int64) {
		Expect(st.InsertMetric(context.Background(), &model.Metric{
			ServiceID: svc.ID, Timestamp: time.Now().Add(-time.Minute), TotalRequests: totalReq, ErrorCount: errs,
		})).To(Succeed())
	}

	Context("when the service is healthy", func() {
		BeforeEach(func() { seed(10000, 1) })

		It("allows the release and records no warnings about risk", func() {
			decision, deployment, err := gate.CheckRelease(context.Background(), Request{
				ServiceName: svc.Name, DeploymentID: "dep-safe", Version: "v1.0.0", RequestedBy: "ci",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeTrue())
			Expect(deployment.Status).To(Equal("approved"))
		})
	})

	Context("when the error spike pushes risk to FREEZE", func() {
		BeforeEach(func() { seed(1000, 500) })

		It("blocks the release without an override", func() {
			decision, deployment, err := gate.CheckRelease(context.Background(), Request{
				ServiceName: svc.Name, DeploymentID: "dep-freeze", Version: "v1.0.1", RequestedBy: "ci",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.RiskLevel).To(Equal(model.RiskFreeze))
			Expect(deployment.Status).To(Equal("rejected"))
		})

		It("allows the release when a reasoned override is supplied", func() {
			decision, _, err := gate.CheckRelease(context.Background(), Request{
				ServiceName:    svc.Name,
				DeploymentID:   "dep-override",
				Version:        "v1.0.2",
				RequestedBy:    "on-call",
				Override:       true,
				OverrideReason: "hotfix for incident INC-123",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeTrue())
			Expect(decision.Warnings).NotTo(BeEmpty())
		})

		It("still blocks an override with no reason given", func() {
			decision, _, err := gate.CheckRelease(context.Background(), Request{
				ServiceName:  svc.Name,
				DeploymentID: "dep-no-reason",
				Version:      "v1.0.3",
				RequestedBy:  "on-call",
				Override:     true,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeFalse())
		})
	})

	Context("when burn rate alone exceeds the release gate threshold", func() {
		BeforeEach(func() {
			// Lift the risk-classification cutoffs out of reach, so the risk
			// level stays SAFE and only the gate's burn-rate threshold applies.
			gate.cfg.BurnRate = config.BurnRateThresholds{Safe: 1000, Observe: 1500, Danger: 2000, Freeze: 3000}
			gate.cfg.ErrorBudget = config.ErrorBudgetThresholds{Observe: 101, Danger: 102, Freeze: 103}
			seed(10000, 700)
		})

		It("blocks with a burn-rate-specific reason", func() {
			decision, _, err := gate.CheckRelease(context.Background(), Request{
				ServiceName: svc.Name, DeploymentID: "dep-burn", Version: "v1.0.4", RequestedBy: "ci",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.RiskLevel).To(Equal(model.RiskSafe))
			Expect(decision.BlockedReason).To(ContainSubstring("burn rate"))
		})
	})
})
