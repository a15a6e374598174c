//go:build ignore

// デモ用の設備ステータスログを生成してDBに投入します。
//
//	go run scripts/seed_demo_data.go -days 14
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	config "oee-copilot/configs"
	"oee-copilot/pkg/models"
	"oee-copilot/pkg/store"

	"github.com/joho/godotenv"
)

var (
	equipment = []string{"Press 1", "Press 2", "Welder A", "Conveyor 3", "Packer"}
	reasons   = []string{"Belt", "Jam", "Motor overheat", "Material shortage", "Changeover", "-"}
)

func main() {
	days := flag.Int("days", 14, "number of days to generate")
	seed := flag.Int64("seed", 42, "random seed")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	db, err := store.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("データベースの初期化に失敗: %v", err)
	}
	defer db.Close()

	rng := rand.New(rand.NewSource(*seed))
	start := time.Now().UTC().AddDate(0, 0, -*days).Truncate(24 * time.Hour)

	var entries []models.StatusLogEntry
	for d := 0; d < *days; d++ {
		date := start.AddDate(0, 0, d)
		for i, name := range equipment {
			// 設備ごとに停止の起きやすさを変える
			downShare := 0.05 + 0.07*float64(i)
			shift := 8 * 60
			down := int(float64(shift) * downShare * (0.5 + rng.Float64()))
			entries = append(entries,
				models.StatusLogEntry{EquipmentName: name, Status: "running", Date: date, StartTime: "08:00", DurationMinutes: shift - down},
				models.StatusLogEntry{EquipmentName: name, Status: "down", Date: date, DurationMinutes: down, Reason: reasons[rng.Intn(len(reasons))]},
			)
		}
	}

	n, err := store.New(db).InsertLogs(context.Background(), entries)
	if err != nil {
		log.Fatalf("ステータスログの投入に失敗: %v", err)
	}
	fmt.Printf("✅ %d rows for %d equipment over %d days written to %s\n", n, len(equipment), *days, cfg.DBPath)
}
