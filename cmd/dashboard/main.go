// cmd/dashboard/main.go
//
// Headless dashboard client: resumes or establishes a session, loads
// the campaign list and keeps it reconciled against push events while
// watching.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/unclebandit/smsleopard-dashboard/internal/apiclient"
	"github.com/unclebandit/smsleopard-dashboard/internal/channel"
	"github.com/unclebandit/smsleopard-dashboard/internal/config"
	"github.com/unclebandit/smsleopard-dashboard/internal/model"
	"github.com/unclebandit/smsleopard-dashboard/internal/reconciler"
	"github.com/unclebandit/smsleopard-dashboard/internal/session"
	"github.com/unclebandit/smsleopard-dashboard/internal/sheet"
)

func main() {
	var (
		token     = flag.String("token", "", "log in with a fresh credential token")
		logout    = flag.Bool("logout", false, "clear the stored credential and exit")
		deleteIDs = flag.String("delete", "", "comma-separated campaign ids to delete")
		startID   = flag.Int("start", 0, "campaign id to start")
		create    = flag.String("create", "", "path to a recipient spreadsheet to create a campaign from")
		name      = flag.String("name", "", "campaign name (with -create)")
		message   = flag.String("message", "", "message template (with -create)")
		schedule  = flag.String("schedule", "", "optional RFC3339 schedule time (with -create)")
		watch     = flag.Bool("watch", false, "keep running and re-render on push events")
	)
	flag.Parse()

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store := session.NewTokenStore(cfg.StateDir)
	mgr := session.NewManager(store, func(token string, user model.User) (channel.Channel, error) {
		return channel.DialNATS(cfg.NATSURL, token, user.ID)
	})

	if *logout {
		mgr.Logout()
		return
	}

	api := apiclient.New(cfg.APIBaseURL, mgr.Token)
	api.OnUnauthorized = func() {
		mgr.SetRedirect("/campaigns")
		mgr.Invalidate()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *token != "" {
		if err := mgr.Login(*token); err != nil {
			log.Fatalf("login failed: %v", err)
		}
	} else {
		validate := func(ctx context.Context, tok string) (model.User, error) {
			return apiclient.New(cfg.APIBaseURL, func() string { return tok }).Me(ctx)
		}
		if err := mgr.Resume(ctx, validate); err != nil {
			log.Println("⚠️ Could not resume session:", err)
		}
	}

	if !mgr.IsAuthenticated() {
		fmt.Println("Not logged in. Run with -token <credential token>.")
		return
	}

	if *create != "" {
		createCampaign(ctx, api, *create, *name, *message, *schedule)
		return
	}
	if *startID != 0 {
		if err := api.StartCampaign(ctx, *startID); err != nil {
			log.Fatalf("start failed: %v", err)
		}
		fmt.Printf("Campaign %d starting.\n", *startID)
		return
	}

	rec := reconciler.New(api)
	rec.Navigate = func(path string) {
		fmt.Printf("Redirecting to %s, run again with -token to log in.\n", path)
		cancel()
	}

	if err := rec.Load(ctx); err != nil {
		fmt.Println("Error:", rec.LastError())
		if *deleteIDs == "" && !*watch {
			return
		}
	}

	if *deleteIDs != "" {
		deleteCampaigns(ctx, rec, *deleteIDs)
	}

	render(rec.Snapshot())

	if !*watch {
		return
	}

	ch := mgr.Channel()
	unbind, err := rec.Bind(ch)
	if err != nil {
		log.Fatalf("failed to bind push events: %v", err)
	}
	defer unbind()

	offDevice, _ := ch.Subscribe("deviceStatusUpdate", func(payload []byte) {
		var ds model.DeviceStatus
		if json.Unmarshal(payload, &ds) == nil {
			fmt.Printf("Device: connected=%v battery=%d%% package=%s model=%s\n",
				ds.IsConnected, ds.BatteryLevel, ds.SMSPackage, ds.DeviceModel)
		}
	})
	defer offDevice()

	offActive, _ := ch.Subscribe("activeCampaignUpdate", func(payload []byte) {
		if string(payload) == "null" || len(payload) == 0 {
			fmt.Println("No campaign in progress.")
			return
		}
		var c model.Campaign
		if json.Unmarshal(payload, &c) == nil {
			fmt.Printf("Active campaign: %s (%d/%d)\n", c.Name, c.Processed(), c.RecipientsTotal)
		}
	})
	defer offActive()

	_ = ch.Emit("requestActiveCampaign", nil)
	_ = ch.Emit("requestDeviceStatus", nil)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			render(rec.Snapshot())
		case <-sig:
			return
		case <-ctx.Done():
			return
		}
	}
}

func createCampaign(ctx context.Context, api *apiclient.Client, path, name, message, schedule string) {
	if name == "" || message == "" {
		log.Fatal("create needs -name and -message")
	}

	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("could not open %s: %v", path, err)
	}
	count, err := sheet.DetectRecipients(f, strings.Contains(message, "{nome}"))
	f.Close()
	if err != nil {
		log.Fatalf("spreadsheet rejected: %v", err)
	}
	fmt.Printf("Detected %d recipient(s) in %s\n", count, path)

	f, err = os.Open(path)
	if err != nil {
		log.Fatalf("could not open %s: %v", path, err)
	}
	defer f.Close()

	params := apiclient.CreateCampaignParams{
		Name:            name,
		MessageTemplate: message,
		FileName:        path,
		File:            f,
	}
	if schedule != "" {
		t, err := time.Parse(time.RFC3339, schedule)
		if err != nil {
			log.Fatalf("invalid schedule time: %v", err)
		}
		params.ScheduledAt = &t
	}

	campaign, err := api.CreateCampaign(ctx, params)
	if err != nil {
		log.Fatalf("create failed: %v", err)
	}
	fmt.Printf("Campaign %d created (%s, %d recipients)\n", campaign.ID, campaign.Status, campaign.RecipientsTotal)
}

func deleteCampaigns(ctx context.Context, rec *reconciler.Reconciler, raw string) {
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			log.Fatalf("invalid campaign id %q", part)
		}
		ids = append(ids, id)
	}
	if err := rec.DeleteMany(ctx, ids); err != nil {
		fmt.Println("Error:", err)
	}
}

func render(campaigns []model.Campaign) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tPROGRESS\tCREATED")
	for _, c := range campaigns {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d/%d\t%s\n",
			c.ID, c.Name, c.Status, c.Processed(), c.RecipientsTotal,
			c.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
}
