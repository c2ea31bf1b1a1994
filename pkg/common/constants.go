package common

const (
	RedisKeyAlertMarker = "prediction_alert_sent:%d:%d:%s"
	RedisKeyLastRun     = "dispatch:last_run"

	MarkerDateLayout = "2006-01-02"
)
