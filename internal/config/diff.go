package config

import (
	"reflect"
	"sort"
	"strings"

	"gatebot/pkg/logx"
)

// Change is the result of comparing two configs.
type Change struct {
	// Sections lists the changed top-level sections, sorted.
	Sections []string
	// Fields are safe log attributes for the new values; secrets are
	// reported only as "set" flags.
	Fields []logx.Field
	// RestartRequired lists changed settings that only take effect after a
	// restart.
	RestartRequired []string
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// Diff summarizes the difference between oldCfg and newCfg.
func Diff(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	o, n := oldCfg, newCfg

	if o.Telegram != n.Telegram {
		ch.Sections = append(ch.Sections, "telegram")
		ch.Fields = append(ch.Fields,
			logx.Int64("telegram.admin_user_id", n.Telegram.AdminUserID),
			logx.Int64("telegram.group_chat_id", n.Telegram.GroupChatID),
			logx.Bool("telegram.token_set", strings.TrimSpace(n.Telegram.Token) != ""),
		)
		if o.Telegram.Token != n.Telegram.Token {
			ch.RestartRequired = append(ch.RestartRequired, "telegram.token")
		}
		if o.Telegram.GroupChatID != n.Telegram.GroupChatID {
			ch.RestartRequired = append(ch.RestartRequired, "telegram.group_chat_id")
		}
		if strings.TrimSpace(o.Telegram.PollTimeout) != strings.TrimSpace(n.Telegram.PollTimeout) {
			ch.RestartRequired = append(ch.RestartRequired, "telegram.poll_timeout")
		}
	}

	if !reflect.DeepEqual(o.Gate, n.Gate) {
		ch.Sections = append(ch.Sections, "gate")
		ch.Fields = append(ch.Fields,
			logx.String("gate.ttl", n.Gate.TTL),
			logx.Bool("gate.approve_on_success", n.Gate.ApproveOnSuccess),
			logx.Bool("gate.welcome_photo_set", n.Gate.WelcomePhotoURL != ""),
			logx.String("gate.sweep_schedule", n.SweepSchedule("default")),
		)
	}

	if o.Broadcast != n.Broadcast {
		ch.Sections = append(ch.Sections, "broadcast")
		ch.Fields = append(ch.Fields, logx.String("broadcast.interval", n.Broadcast.Interval))
	}

	if o.Router != n.Router {
		ch.Sections = append(ch.Sections, "router")
		ch.Fields = append(ch.Fields, logx.String("router.handler_timeout", n.Router.HandlerTimeout))
		if o.Router.Workers != n.Router.Workers || o.Router.QueueSize != n.Router.QueueSize {
			ch.RestartRequired = append(ch.RestartRequired, "router.workers/queue_size")
		}
	}

	if o.Storage != n.Storage {
		ch.Sections = append(ch.Sections, "storage")
		ch.Fields = append(ch.Fields,
			logx.String("storage.driver", n.Storage.Driver),
			logx.Bool("storage.path_set", n.Storage.Path != ""),
			logx.Bool("storage.dsn_set", n.Storage.DSN != ""),
		)
		ch.RestartRequired = append(ch.RestartRequired, "storage")
	}

	if o.Health != n.Health {
		ch.Sections = append(ch.Sections, "health")
		ch.Fields = append(ch.Fields,
			logx.String("health.addr", n.HealthAddr()),
			logx.Bool("health.pprof", n.Health.Pprof),
			logx.Bool("health.token_set", n.Health.Token != ""),
		)
		ch.RestartRequired = append(ch.RestartRequired, "health")
	}

	if o.Logging != n.Logging {
		ch.Sections = append(ch.Sections, "logging")
		ch.Fields = append(ch.Fields,
			logx.String("logging.level", n.Logging.Level),
			logx.Bool("logging.console", n.Logging.Console),
			logx.Bool("logging.file_enabled", n.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", n.Logging.Telegram.Enabled),
		)
	}

	sort.Strings(ch.Sections)
	return ch
}
