// Command promokit-demo seeds an in-memory promotional catalog, builds an
// order, runs a reconciliation pass and prints the resulting lines. With
// -serve it exposes the REST API on :8080/api and streams engine events
// over WebSocket at /api/ws.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	mem "promokit/adapters/memory"
	"promokit/analytics"
	"promokit/api/httpapi"
	"promokit/config"
	"promokit/core"
	"promokit/promo"
	"promokit/realtime"
	"promokit/tax"
)

func main() {
	profile := flag.String("profile", "development", "config profile to load")
	serve := flag.Bool("serve", false, "keep serving the REST API and /api/ws after the demo pass")
	flag.Parse()

	cfg, err := config.LoadProfile(*profile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := setupLogging(cfg)

	catalog, err := setupCatalog(cfg, "demo")
	if err != nil {
		logger.Error("catalog setup failed", "error", err)
		os.Exit(1)
	}
	if src, ok := catalog.(*mem.Source); ok {
		seedDemo(src)
	}

	taxes := tax.NewEngine(
		tax.Definition{ID: "vat21", Name: "VAT 21%", Percent: 21},
		tax.Definition{ID: "vat10", Name: "VAT 10%", Percent: 10},
	)

	hub := realtime.NewHub()
	svc := promo.New(
		promo.WithCatalog(catalog),
		promo.WithTaxEngine(taxes),
		promo.WithLogger(logger),
		promo.WithRealtime(hub),
		promo.WithDebounce(cfg.Engine.Debounce),
		promo.WithRounding(cfg.Engine.Rounding),
		promo.WithDispatchMode(dispatchMode(cfg)),
	)
	defer svc.Close()

	order := core.NewOrder("demo-order", "retail")
	order.PartnerID = "partner-42"
	order.AddLine(&core.OrderLine{ID: "l1", ProductID: "espresso", Qty: 4, UnitPrice: 2.50, TaxIDs: []core.TaxID{"vat10"}})
	order.AddLine(&core.OrderLine{ID: "l2", ProductID: "grinder", Qty: 1, UnitPrice: 89.00, TaxIDs: []core.TaxID{"vat21"}})

	rec := svc.NewReconciler(order)
	ctx := context.Background()

	if err := rec.EnterCode(ctx, "WELCOME10"); err != nil {
		logger.Warn("code rejected", "error", err)
	}
	if err := rec.ReconcileNow(ctx); err != nil {
		logger.Error("reconcile failed", "error", err)
		os.Exit(1)
	}

	fmt.Println("order after reconciliation:")
	for _, l := range order.Lines {
		fmt.Printf("  %-28s qty=%5.1f unit=%8.2f subtotal=%8.2f", l.ProductID, l.Qty, l.UnitPrice, l.Subtotal())
		if l.IsRewardLine {
			fmt.Printf("  [reward %s]", l.RewardID)
		}
		if l.DiscountPercent > 0 {
			fmt.Printf("  (-%.0f%% %s)", l.DiscountPercent, l.DiscountReason)
		}
		fmt.Println()
	}
	fmt.Printf("total (tax incl): %.2f\n", order.TotalWithTax(taxes, cfg.Engine.Rounding))

	if *serve {
		reports := analytics.NewService()
		reports.Attach(svc.Bus())
		reports.Start(ctx)

		handler := httpapi.NewMux(svc, hub, httpapi.Options{PathPrefix: "/api"})
		logger.Info("serving REST API on :8080/api and events on :8080/api/ws")
		if err := http.ListenAndServe(":8080", handler); err != nil {
			logger.Error("server crashed", "error", err)
			os.Exit(1)
		}
	}
}

// seedDemo loads a small catalog: an automatic points program with a main
// 10% discount reward, and a code-activated welcome coupon program.
func seedDemo(src *mem.Source) {
	loyalty := &core.Program{
		ID:            "loyalty",
		Name:          "Coffee Loyalty",
		Trigger:       core.TriggerAuto,
		Applicability: core.ApplyBoth,
		Rules: []*core.Rule{{
			ID:          "earn-per-euro",
			ProgramID:   "loyalty",
			Mode:        core.PointsPerMoney,
			PointAmount: 1,
		}},
		Rewards: []*core.Reward{{
			ID:             "ten-off",
			ProgramID:      "loyalty",
			Kind:           core.RewardDiscount,
			RequiredPoints: 50,
			IsMain:         true,
			Discount: &core.DiscountReward{
				Applicability: core.DiscountOnOrder,
				Mode:          core.DiscountPercent,
				Value:         10,
				MaxAmount:     25,
			},
		}},
	}

	welcome := &core.Program{
		ID:            "welcome",
		Name:          "Welcome Coupon",
		Trigger:       core.TriggerWithCode,
		Applicability: core.ApplyCurrent,
		Rules: []*core.Rule{{
			ID:        "any-order",
			ProgramID: "welcome",
			Mode:      core.PointsPerOrder,
		}},
		Rewards: []*core.Reward{{
			ID:        "free-espresso",
			ProgramID: "welcome",
			Kind:      core.RewardProduct,
			Product: &core.ProductReward{
				ProductIDs: []core.ProductID{"espresso"},
				Quantity:   1,
			},
		}},
	}

	src.SeedPrograms(loyalty, welcome)
	src.SeedCoupon("WELCOME10", &core.Coupon{
		ID:         "welcome-1",
		ProgramID:  "welcome",
		Code:       "WELCOME10",
		Points:     1,
		Expiration: time.Now().Add(30 * 24 * time.Hour),
	})
}
