// Package model holds the entity types shared by the ingestion pipeline,
// the store and the analytics layer.
//
// Every entity is scoped by a store id (the merchant's storefront identity).
// Upstream identifiers (order, variant and product ids) are 64-bit integers
// assigned by the commerce platform and are treated as stable.
//
// Timestamps cross package boundaries as time.Time in UTC and are persisted
// with TimestampLayout, a fixed-width text form whose lexical order matches
// chronological order. Monetary values are kept as the Amount text received
// from upstream and only interpreted (and sanitised) at aggregation time.
package model
