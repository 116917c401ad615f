// Package db embeds the database schema and seed data.
package db

import _ "embed"

// Schema contains the DDL statements for the coupons and api_keys tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// SeedCoupons is the default coupon set loaded by cmd/seed-db.
//
//go:embed seed/coupons.json
var SeedCoupons []byte
