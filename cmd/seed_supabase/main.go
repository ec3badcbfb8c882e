// Command seed_supabase loads a demo catalogue, payment wallets and an admin
// profile into a Supabase project.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	app "github.com/muraguri00/zalora-luxury/internal/app"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/product"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	"github.com/muraguri00/zalora-luxury/internal/app/services/inventory"
	"github.com/muraguri00/zalora-luxury/internal/app/services/wallets"
	supabasestore "github.com/muraguri00/zalora-luxury/internal/app/storage/supabase"
	"github.com/muraguri00/zalora-luxury/pkg/logger"
	"github.com/muraguri00/zalora-luxury/supabase/client"
)

type seedProduct struct {
	name, category, price string
	stock                 int
}

var catalogue = []seedProduct{
	{"Silk Evening Gown", "dresses", "1250.00", 4},
	{"Cashmere Wrap Coat", "outerwear", "980.00", 6},
	{"Leather Top Handle Bag", "bags", "1540.00", 3},
	{"Gold Plated Cuff", "jewellery", "420.00", 10},
	{"Suede Ankle Boots", "shoes", "610.00", 8},
}

var demoWallets = []wallets.CreateInput{
	{Type: "USDT_TRC20", Address: "TQ5NrmW3o2t5fUM3yJkA6sVYqvW2ebqU1t"},
	{Type: "BTC", Address: "bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh"},
	{Type: "ETH", Address: "0x71C7656EC7ab88b098defB751B7401B5f6d8976F"},
}

func main() {
	var (
		envFile = flag.String("env", ".env", "Path to .env with SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")
		adminID = flag.String("admin-id", "", "User id of the admin profile to create (required)")
		email   = flag.String("admin-email", "admin@example.com", "Email of the admin profile")
		storeID = flag.String("store-id", "", "Store id the demo products belong to (defaults to the admin id)")
		skipCat = flag.Bool("skip-products", false, "Do not seed the demo catalogue")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("load env (%s): %v", *envFile, err)
	}
	if *adminID == "" {
		log.Fatal("-admin-id is required")
	}
	if *storeID == "" {
		*storeID = *adminID
	}

	url := os.Getenv("SUPABASE_URL")
	key := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	if url == "" || key == "" {
		log.Fatalf("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY must be set (env file %s)", *envFile)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	sb, err := client.New(client.Config{URL: url, APIKey: key})
	if err != nil {
		log.Fatalf("supabase client: %v", err)
	}
	lg := logger.NewDefault("seed")
	opts := app.Options{}
	if bucket := os.Getenv("SUPABASE_STORAGE_BUCKET"); bucket != "" {
		opts.QR = wallets.BucketUploader{Bucket: sb.Storage().From(bucket), Prefix: "wallets"}
	}
	core, err := app.New(app.StoresFrom(supabasestore.New(sb, lg.Named("supabase-store"))), opts, lg)
	if err != nil {
		log.Fatalf("build services: %v", err)
	}

	admin := &profile.Principal{UserID: *adminID, Email: *email, Role: profile.RoleAdmin}
	if _, err := core.Profiles.EnsureProfile(ctx, admin, *email); err != nil {
		log.Fatalf("ensure admin profile: %v", err)
	}
	if _, err := core.Profiles.UpdateRole(ctx, admin, *adminID, profile.RoleAdmin); err != nil {
		log.Fatalf("promote admin profile: %v", err)
	}
	fmt.Printf("Admin profile %s ready\n", *adminID)

	if !*skipCat {
		for _, p := range catalogue {
			created, err := core.Inventory.CreateProduct(ctx, admin, inventory.ProductInput{
				Name:     p.name,
				Category: p.category,
				Price:    decimal.RequireFromString(p.price),
				Stock:    p.stock,
				Status:   product.StatusActive,
				StoreID:  *storeID,
			})
			if err != nil {
				log.Fatalf("create product %q: %v", p.name, err)
			}
			fmt.Printf("Product %s: %s (stock %d)\n", created.ID, created.Name, created.Stock)
		}
	}

	active := true
	for _, w := range demoWallets {
		w.Active = &active
		res, err := core.Wallets.Create(ctx, admin, w)
		if err != nil {
			log.Fatalf("create %s wallet: %v", w.Type, err)
		}
		for _, warning := range res.Warnings {
			log.Printf("wallet %s: %s", res.Wallet.ID, warning)
		}
		fmt.Printf("Wallet %s: %s active\n", res.Wallet.ID, w.Type)
	}
}
