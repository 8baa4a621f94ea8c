package db

import (
	"database/sql"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/config"

	_ "github.com/go-sql-driver/mysql"
)

func NewConnection(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.WarehouseDSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Warehouse.MaxConnections)
	db.SetMaxIdleConns(cfg.Warehouse.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.Warehouse.ConnectionLifetime)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}
