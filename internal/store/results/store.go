package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"backcast/internal/execution"
	"backcast/internal/runtime"
)

type runModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	Profile     string `gorm:"index;size:64"`
	Status      string `gorm:"index;size:16"`
	StartTS     int64
	EndTS       int64
	Message     string
	ConfigJSON  datatypes.JSON
	StatsJSON   datatypes.JSON
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time
}

func (runModel) TableName() string { return "runs" }

type fillModel struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	RunID        string `gorm:"index;size:64"`
	Symbol       string `gorm:"index;size:32"`
	Side         string `gorm:"size:8"`
	Status       string `gorm:"size:16"`
	Reason       string `gorm:"size:32"`
	RequestedQty float64
	FilledQty    float64
	FillPrice    float64
	Notional     float64
	Fee          float64
	TS           int64 `gorm:"index"`
	ResultJSON   datatypes.JSON
}

func (fillModel) TableName() string { return "fills" }

// Store 基于 Gorm + SQLite 的回放结果存储。
type Store struct {
	db *gorm.DB
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("results store: 路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}, &fillModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: 少量并发连接兼顾 HTTP 读与写入
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRun 新建或覆盖一条任务记录。
func (s *Store) SaveRun(ctx context.Context, run runtime.Run) error {
	cfgJSON, err := run.MarshalConfig()
	if err != nil {
		return err
	}
	statsJSON, err := run.MarshalStats()
	if err != nil {
		return err
	}
	model := runModel{
		ID:          run.ID,
		Profile:     run.Profile,
		Status:      run.Status,
		StartTS:     run.StartTS,
		EndTS:       run.EndTS,
		Message:     run.Message,
		ConfigJSON:  datatypes.JSON(cfgJSON),
		StatsJSON:   datatypes.JSON(statsJSON),
		CreatedAt:   run.CreatedAt,
		UpdatedAt:   run.UpdatedAt,
		CompletedAt: run.CompletedAt,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&model).Error
}

// GetRun 按 ID 取任务；不存在时返回 ok=false。
func (s *Store) GetRun(ctx context.Context, id string) (runtime.Run, bool, error) {
	var model runModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return runtime.Run{}, false, nil
	}
	if err != nil {
		return runtime.Run{}, false, err
	}
	run, err := model.toRun()
	return run, err == nil, err
}

// ListRuns 按创建时间倒序列出任务。
func (s *Store) ListRuns(ctx context.Context, limit int) ([]runtime.Run, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var models []runModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]runtime.Run, 0, len(models))
	for _, m := range models {
		run, err := m.toRun()
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

// SaveFills 批量写入执行结果。
func (s *Store) SaveFills(ctx context.Context, fills []runtime.Fill) error {
	if len(fills) == 0 {
		return nil
	}
	models := make([]fillModel, 0, len(fills))
	for _, f := range fills {
		raw, err := json.Marshal(f.Result)
		if err != nil {
			return err
		}
		models = append(models, fillModel{
			RunID:        f.RunID,
			Symbol:       f.Result.Instrument.Symbol,
			Side:         string(f.Result.Side),
			Status:       string(f.Result.Status),
			Reason:       f.Result.Reason,
			RequestedQty: f.Result.RequestedQty,
			FilledQty:    f.Result.FilledQty,
			FillPrice:    f.Result.FillPrice,
			Notional:     f.Result.Notional,
			Fee:          f.Result.Fee,
			TS:           f.Result.TS,
			ResultJSON:   datatypes.JSON(raw),
		})
	}
	return s.db.WithContext(ctx).CreateInBatches(models, 200).Error
}

// ListFills 按时间升序取某任务的全部执行结果。
func (s *Store) ListFills(ctx context.Context, runID string) ([]runtime.Fill, error) {
	var models []fillModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("ts ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]runtime.Fill, 0, len(models))
	for _, m := range models {
		var res execution.TxResult
		if err := json.Unmarshal(m.ResultJSON, &res); err != nil {
			return nil, err
		}
		out = append(out, runtime.Fill{ID: m.ID, RunID: m.RunID, Result: res})
	}
	return out, nil
}

func (m runModel) toRun() (runtime.Run, error) {
	run := runtime.Run{
		ID:          m.ID,
		Profile:     m.Profile,
		Status:      m.Status,
		StartTS:     m.StartTS,
		EndTS:       m.EndTS,
		Message:     m.Message,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		CompletedAt: m.CompletedAt,
	}
	if len(m.ConfigJSON) > 0 {
		if err := json.Unmarshal(m.ConfigJSON, &run.Config); err != nil {
			return runtime.Run{}, err
		}
	}
	if len(m.StatsJSON) > 0 {
		if err := json.Unmarshal(m.StatsJSON, &run.Stats); err != nil {
			return runtime.Run{}, err
		}
	}
	return run, nil
}
