package model

import "time"

// CreatorAnalytics aggregates a creator's channels.
type CreatorAnalytics struct {
	GrossRevenue       int64
	ActiveSubscribers  int
	Churned            int
	NewToday           int
	PartnerConversions int
	PartnerPayouts     int64
}

// PartnerSummary aggregates a partner's approved channels.
type PartnerSummary struct {
	Earnings        int64
	Balance         int64
	Conversions     int
	ActiveReferrals int
	NewToday        int
	Pending         int
	Channels        []PartnerChannelStats
}

type PartnerChannelStats struct {
	ChannelID   int64
	Title       string
	Conversions int
	Earnings    int64
	Active      int
}

// PlatformStats is the snapshot used by the daily report and the admin API.
type PlatformStats struct {
	Since               time.Time
	Users               int
	NewUsers            int
	Creators            int
	Channels            int
	ActiveSubscriptions int
	NewSubscriptions    int
	ExpiredSince        int
	ActivePreviews      int
	GrossSince          int64
	PlatformFeesSince   int64
	PendingPayouts      int
	PendingPayoutAmount int64
}
