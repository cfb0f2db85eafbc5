package tele_config

type Config struct { //nolint:maligned
	Enable      bool   `hcl:"enable"`
	LogDebug    bool   `hcl:"log_debug"`
	Broker      string `hcl:"broker"`
	ClientID    string `hcl:"client_id"`
	Username    string `hcl:"username"`
	Password    string `hcl:"password"`
	TopicPrefix string `hcl:"topic_prefix"`
	Qos         int    `hcl:"qos"`
	// telemetry poll period, 0 means default, <0 disables polling
	IntervalSec    int    `hcl:"interval_sec"`
	KeepaliveSec   int    `hcl:"keepalive_sec"`
	NetworkTimeout int    `hcl:"network_timeout_sec"`
	QueuePath      string `hcl:"queue_path"`
}
