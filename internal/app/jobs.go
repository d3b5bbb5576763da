package app

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
	"go.uber.org/zap"

	"github.com/evacnet/poekeeper/pkg/metrics"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	if loc == nil {
		loc = time.Local
	}
	a.sched = cron.New(cron.WithParser(cronParser), cron.WithLocation(loc))

	statusInterval := a.GetSettingsInt64Value("poller", "status_interval")
	if statusInterval <= 0 {
		statusInterval = 60
	}
	snmpInterval := a.GetSettingsInt64Value("poller", "snmp_interval")
	if snmpInterval <= 0 {
		snmpInterval = 300
	}

	_, err := a.sched.AddFunc(every(statusInterval), a.pollSwitchStatuses)
	if err != nil {
		zap.L().Error("register status poll job failed", zap.Error(err))
	}
	_, err = a.sched.AddFunc(every(snmpInterval), a.probeSwitchesSnmp)
	if err != nil {
		zap.L().Error("register snmp probe job failed", zap.Error(err))
	}
	_, err = a.sched.AddFunc("@every 30s", collectSystemMetrics)
	if err != nil {
		zap.L().Error("register system metrics job failed", zap.Error(err))
	}

	a.sched.Start()
	zap.L().Info("background jobs started",
		zap.Int64("status_interval", statusInterval),
		zap.Int64("snmp_interval", snmpInterval))
}

func every(seconds int64) string {
	return "@every " + (time.Duration(seconds) * time.Second).String()
}

// collectSystemMetrics samples host load into the local tsdb.
func collectSystemMetrics() {
	cpuPercents, err := cpu.Percent(0, false)
	if err != nil || len(cpuPercents) == 0 {
		return
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	metrics.RecordSystem(cpuPercents[0], vm.UsedPercent)
}
