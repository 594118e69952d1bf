// Package model defines shared data types used across the price feed.
//
// Conventions:
//   - Prices: shopspring decimal values, never float64
//   - Timestamps: int64 milliseconds since Unix epoch
//   - A history is ordered by timestamp (non-decreasing)
package model
