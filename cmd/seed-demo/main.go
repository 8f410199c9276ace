package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kerbside-data/sentinel.report/internal/db"
	"github.com/kerbside-data/sentinel.report/internal/vision"
)

// seed-demo fills the alert store with plausible violations spread over the
// last three days, enough to exercise the dashboard and stats endpoints.

var vehicleClasses = []string{"car", "truck", "bus", "motorcycle"}

var zoneIDs = []string{"zone_A", "zone_B", "zone_C", ""}

// hourWeights skews alert times towards commuter peaks.
var hourWeights = [24]float64{
	0.1, 0.05, 0.05, 0.05, 0.1, 0.2,
	0.5, 0.8, 1.0, 0.9, 0.7, 0.6,
	0.7, 0.6, 0.5, 0.6, 0.8, 1.0,
	0.9, 0.7, 0.5, 0.3, 0.2, 0.15,
}

func weightedHour(rng *rand.Rand) int {
	var total float64
	for _, w := range hourWeights {
		total += w
	}
	pick := rng.Float64() * total
	for h, w := range hourWeights {
		pick -= w
		if pick < 0 {
			return h
		}
	}
	return 23
}

func generateAlert(rng *rand.Rand, base time.Time) *db.Alert {
	day := base.Truncate(24 * time.Hour)
	at := day.Add(time.Duration(weightedHour(rng))*time.Hour +
		time.Duration(rng.Intn(60))*time.Minute +
		time.Duration(rng.Intn(60))*time.Second)
	if at.After(base) {
		at = base
	}

	violationType := string(vision.ViolationIllegalParking)
	if rng.Intn(2) == 1 {
		violationType = string(vision.ViolationWrongWay)
	}

	metadata := map[string]interface{}{
		"vehicle_class": vehicleClasses[rng.Intn(len(vehicleClasses))],
	}
	if violationType == string(vision.ViolationWrongWay) {
		metadata["speed_estimate"] = float64(rng.Intn(600)) / 10
	}

	return &db.Alert{
		ViolationType: violationType,
		Confidence:    0.65 + rng.Float64()*0.33,
		ObjectID:      int64(rng.Intn(200) + 1),
		SnapshotPath:  fmt.Sprintf("snapshots/demo_%04d.jpg", rng.Intn(9000)+1000),
		ZoneID:        zoneIDs[rng.Intn(len(zoneIDs))],
		Metadata:      metadata,
		CreatedAt:     at.UTC(),
	}
}

func main() {
	var dbPath string
	var count int
	var seed int64

	flag.StringVar(&dbPath, "db", "sentinel_alerts.db", "path to sqlite db")
	flag.IntVar(&count, "count", 50, "number of alerts to generate")
	flag.Int64Var(&seed, "seed", 0, "rng seed (0 uses current time)")
	flag.Parse()

	if count <= 0 {
		log.Fatalf("count must be positive, got %d", count)
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	dbConn, err := db.NewDB(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer dbConn.Close()

	now := time.Now().UTC()
	byType := map[string]int{}
	for i := 0; i < count; i++ {
		base := now.AddDate(0, 0, -(i % 3))
		alert := generateAlert(rng, base)
		if err := dbConn.InsertAlert(alert); err != nil {
			log.Fatalf("insert alert: %v", err)
		}
		byType[alert.ViolationType]++
	}

	total, err := dbConn.CountAlerts()
	if err != nil {
		log.Fatalf("count alerts: %v", err)
	}
	fmt.Printf("seeded %d alerts (%v); store now holds %d\n", count, byType, total)
}
