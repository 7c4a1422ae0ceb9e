// Command seed fills a development database with one tenant, an event with
// a free and a paid option, and prints access tokens for trying the API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"eventreg/internal/config"
	"eventreg/internal/database"
	"eventreg/internal/domain"
	"eventreg/internal/modules/pricing"
	"eventreg/internal/pkg/authz"
	"eventreg/internal/pkg/jwt"
)

func main() {
	reset := flag.Bool("reset", false, "delete existing rows first")
	account := flag.String("account", "acct_dev", "connected gateway account of the tenant")
	taxRate := flag.String("tax-rate", "txr_dev_inclusive", "gateway tax rate id for the paid option")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config: ", err)
	}
	db, err := database.Connect(cfg.DatabaseURL, nil)
	if err != nil {
		log.Fatal("DB connection failed: ", err)
	}

	log.Println("Running AutoMigrate...")
	if err := database.Migrate(db); err != nil {
		log.Fatal("AutoMigrate failed: ", err)
	}

	if *reset {
		log.Println("Cleaning old data...")
		for _, m := range domain.Models() {
			if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
				log.Fatalf("clean %T: %v", m, err)
			}
		}
	}

	tenant := domain.Tenant{
		Name:                     "ESN Dev Section",
		Currency:                 "eur",
		StripeAccountID:          *account,
		ApplicationFeePercent:    3.5,
		EnabledDiscountProviders: datatypes.JSONSlice[string]{"esnCard"},
		DefaultCancellationPolicy: datatypes.NewJSONType(domain.CancellationPolicy{
			AllowCancellation:      true,
			IncludeTransactionFees: false,
			IncludeAppFees:         true,
			CutoffDays:             3,
		}),
	}
	must(db.Create(&tenant).Error, "tenant")

	must(db.Clauses(clause.OnConflict{DoNothing: true}).Create(&domain.TaxRate{
		TenantID:    tenant.ID,
		ExternalID:  *taxRate,
		DisplayName: "VAT 19% incl.",
		Inclusive:   true,
		Active:      true,
		Percentage:  19,
	}).Error, "tax rate")

	start := time.Now().AddDate(0, 0, 21).Truncate(time.Hour)
	event := domain.Event{TenantID: tenant.ID, Title: "Weekend in the Alps", Start: start, End: start.Add(48 * time.Hour)}
	must(db.Create(&event).Error, "event")

	open := time.Now().Add(-time.Hour)
	options := []*domain.RegistrationOption{
		{
			Title:                 "Participant",
			Spots:                 40,
			IsPaid:                true,
			Price:                 12900,
			TaxRateRef:            taxRate,
			DiscountRules:         datatypes.JSONSlice[domain.DiscountRule]{{DiscountType: "esnCard", DiscountedPrice: 10900}},
			OpenRegistrationTime:  open,
			CloseRegistrationTime: start.Add(-24 * time.Hour),
		},
		{
			Title:                 "Organizer",
			Spots:                 4,
			OpenRegistrationTime:  open,
			CloseRegistrationTime: start,
			CancellationPolicy:    &domain.CancellationPolicy{AllowCancellation: true},
		},
	}

	prices := pricing.NewService(db)
	for _, opt := range options {
		opt.TenantID = tenant.ID
		opt.EventID = event.ID
		if err := prices.ValidateOption(context.Background(), opt); err != nil {
			log.Fatalf("option %q: %v", opt.Title, err)
		}
		must(db.Create(opt).Error, "option "+opt.Title)
	}

	must(db.Create(&domain.DiscountCredential{
		TenantID:   tenant.ID,
		UserID:     "user-esn",
		Type:       "esnCard",
		Identifier: "ESN-DEV-0001",
		Status:     domain.DiscountCredentialVerified,
	}).Error, "discount credential")

	j := jwt.New(cfg.JWTSecret, 24*time.Hour)
	tokens := []struct {
		user  string
		perms []string
	}{
		{"user-plain", nil},
		{"user-esn", nil},
		{"user-staff", []string{
			string(authz.PermCancelAnyRegistration),
			string(authz.PermSkipRefund),
			string(authz.PermCheckIn),
		}},
	}

	fmt.Fprintf(os.Stdout, "tenant=%s event=%s paid_option=%s free_option=%s\n",
		tenant.ID, event.ID, options[0].ID, options[1].ID)
	for _, tk := range tokens {
		token, err := j.GenerateToken(tk.user, tenant.ID, tk.perms)
		must(err, "token")
		fmt.Fprintf(os.Stdout, "%s: %s\n", tk.user, token)
	}
	log.Println("Seed completed")
}

func must(err error, what string) {
	if err != nil {
		log.Fatalf("seed %s: %v", what, err)
	}
}
