package store

import "time"

// Models mirror the domain aggregates for gorm persistence; they are never
// passed across a package boundary, only converted to/from domain types by
// the matching mapper function in each repository file.

type nodeModel struct {
	ID       int64  `gorm:"primaryKey"`
	Remark   string `gorm:"size:255;not null"`
	Kind     string `gorm:"size:32;not null"`
	Host     string `gorm:"size:255;not null"`
	Username string `gorm:"size:128"`
	Password string `gorm:"size:255"`

	Access          string `gorm:"size:2048"`
	AccessUpdatedAt time.Time

	OffsetLink  int
	BatchSize   int
	Priority    int
	UsageRate   float64
	RateDisplay string `gorm:"size:64"`

	ScriptURL    string `gorm:"size:255"`
	ScriptSecret string `gorm:"size:255"`

	ShowConfigs bool
	Enabled     bool `gorm:"index"`
	Removed     bool `gorm:"index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (nodeModel) TableName() string { return "nodes" }

type adminModel struct {
	ID           int64  `gorm:"primaryKey"`
	Username     string `gorm:"size:30;uniqueIndex"`
	PasswordHash string `gorm:"size:255"`
	Role         string `gorm:"size:16"`

	APIKey string `gorm:"size:64;uniqueIndex"`
	Secret string `gorm:"size:32"`

	CanCreate bool
	CanUpdate bool
	CanRemove bool

	CountLimit   int64
	UsageLimit   int64
	CurrentCount int64
	CurrentUsage int64

	ExpireWarningDays   int
	UsageWarningPercent int

	PlaceholdersJSON string `gorm:"type:text"`
	PresentationJSON string `gorm:"type:text"`
	NotifyJSON       string `gorm:"type:text"`
	TOTPJSON         string `gorm:"type:text"`

	Removed   bool `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (adminModel) TableName() string { return "admins" }

type serviceModel struct {
	ID         int64  `gorm:"primaryKey"`
	Remark     string `gorm:"size:255"`
	NodeIDsRaw string `gorm:"type:text"`
}

func (serviceModel) TableName() string { return "services" }

type subscriptionModel struct {
	ID       int64  `gorm:"primaryKey"`
	Username string `gorm:"size:30;uniqueIndex"`
	OwnerID  int64  `gorm:"index"`

	AccessKey string `gorm:"size:32;uniqueIndex"`
	ServerKey string `gorm:"size:8;index"`

	Enabled         bool `gorm:"index"`
	Activated       bool
	Reached         bool `gorm:"index"`
	Debted          bool
	OnReachedExpire bool
	OnReachedUsage  bool
	Removed         bool `gorm:"index"`
	Changed         bool

	LimitUsage     int64
	ResetUsage     int64
	LimitExpire    int64
	AutoDeleteDays int

	Note string `gorm:"size:1024"`

	TotalUsage int64
	OnlineAt   time.Time

	CreatedAt     time.Time
	LastResetAt   time.Time
	LastRevokeAt  time.Time
	LastRequestAt time.Time
	InactiveAt    time.Time
	ReachedAt     time.Time `gorm:"index"`
	RemovedAt     time.Time

	LastClientAgent   string `gorm:"size:256"`
	TelegramID        string `gorm:"size:64"`
	DiscordWebhookURL string `gorm:"size:512"`

	ServiceIDsRaw string `gorm:"type:text"`
}

func (subscriptionModel) TableName() string { return "subscriptions" }

type usageModel struct {
	ID             int64 `gorm:"primaryKey"`
	SubscriptionID int64 `gorm:"uniqueIndex:idx_usage_bucket"`
	NodeID         int64 `gorm:"uniqueIndex:idx_usage_bucket"`
	HourBucket     time.Time `gorm:"uniqueIndex:idx_usage_bucket"`
	RawCounter     int64
	AdjustedUsage  int64
	UpdatedAt      time.Time
}

func (usageModel) TableName() string { return "subscription_usages" }

type usageLogModel struct {
	ID             int64     `gorm:"primaryKey"`
	SubscriptionID int64     `gorm:"index"`
	HourBucket     time.Time `gorm:"index"`
	Usage          int64
}

func (usageLogModel) TableName() string { return "subscription_usage_logs" }

type autoRenewalModel struct {
	ID             int64 `gorm:"primaryKey"`
	SubscriptionID int64 `gorm:"index"`
	LimitUsage     int64
	LimitExpire    int64
	ResetUsage     bool
}

func (autoRenewalModel) TableName() string { return "subscription_auto_renewals" }
