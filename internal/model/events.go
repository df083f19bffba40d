package model

// Payloads carried on the push channel. Field names match what the
// dashboard receives on the wire, hence the camelCase tags.

type CampaignProgress struct {
	CampaignID      int `json:"campaignId"`
	SuccessCount    int `json:"successCount"`
	FailureCount    int `json:"failureCount"`
	TotalRecipients int `json:"totalRecipients"`
}

type CampaignStatusUpdate struct {
	CampaignID int            `json:"campaignId"`
	Status     CampaignStatus `json:"status"`
}

type DeviceStatus struct {
	IsConnected  bool   `json:"isConnected"`
	BatteryLevel int    `json:"batteryLevel"`
	SMSPackage   string `json:"smsPackage"`
	DeviceModel  string `json:"deviceModel"`
}

type User struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
}

type StatsPoint struct {
	Date        string `json:"date"` // YYYY-MM-DD
	SentCount   int    `json:"sent_count"`
	FailedCount int    `json:"failed_count"`
}

type StatsResponse struct {
	Period        string       `json:"period"`
	ReferenceDate string       `json:"reference_date"`
	Stats         []StatsPoint `json:"stats"`
}
