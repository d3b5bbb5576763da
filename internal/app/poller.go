package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gosnmp "github.com/gosnmp/gosnmp"
	"go.uber.org/zap"

	"github.com/evacnet/poekeeper/internal/domain"
	"github.com/evacnet/poekeeper/internal/switchctl"
)

// pollSwitchStatuses reads the admin state of every enabled switch and
// reconciles device rows with what the hardware reports.
func (a *Application) pollSwitchStatuses() {
	switches, err := a.repo.ListSwitches()
	if err != nil {
		zap.L().Error("status poll: list switches failed", zap.Error(err))
		return
	}

	const defaultMaxWorkers = 8
	maxWorkers := int(a.GetSettingsInt64Value("poller", "max_workers"))
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}
	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup

	for _, sw := range switches {
		if sw.Status != "enabled" {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(sw domain.PoeSwitch) {
			defer wg.Done()
			defer func() { <-sem }()
			a.pollOneSwitch(sw)
		}(sw)
	}
	wg.Wait()
}

func (a *Application) pollOneSwitch(sw domain.PoeSwitch) {
	client, err := a.registry.GetOrCreate(switchctl.SwitchType(sw.SwitchType),
		switchctl.Credentials{Ipaddr: sw.Ipaddr, Password: sw.Password})
	if err != nil {
		zap.L().Error("status poll: client create failed",
			zap.String("ip", sw.Ipaddr), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statuses, err := client.GetPortStatuses(ctx)
	if err != nil {
		zap.L().Warn("status poll: switch unreachable",
			zap.String("ip", sw.Ipaddr), zap.Error(err))
		a.repo.MarkSwitchProbe(sw.ID, false, err.Error())
		return
	}
	a.repo.MarkSwitchProbe(sw.ID, true, "ok")

	byPort := make(map[int]bool, len(statuses))
	for _, st := range statuses {
		byPort[st.Port] = st.Enabled
	}

	devices, err := a.repo.ListDevices()
	if err != nil {
		zap.L().Error("status poll: list devices failed", zap.Error(err))
		return
	}
	for _, dev := range devices {
		if dev.SwitchID != sw.ID {
			continue
		}
		enabled, ok := byPort[dev.Port]
		if !ok || enabled == dev.Enabled {
			continue
		}
		if err := a.gormDB.Model(&domain.PoeDevice{}).
			Where("id = ?", dev.ID).Update("enabled", enabled).Error; err != nil {
			zap.L().Error("status poll: device update failed",
				zap.Int64("device_id", dev.ID), zap.Error(err))
			continue
		}
		zap.L().Info("status poll: device state reconciled",
			zap.Int64("device_id", dev.ID),
			zap.Int("port", dev.Port),
			zap.Bool("enabled", enabled))
	}
}

// probeSwitchesSnmp checks reachability of SNMP-enabled switches by
// reading sysUpTime, a lighter touch than a full web session.
func (a *Application) probeSwitchesSnmp() {
	switches, err := a.repo.ListSwitches()
	if err != nil {
		zap.L().Error("snmp probe: list switches failed", zap.Error(err))
		return
	}

	const defaultMaxWorkers = 8
	maxWorkers := int(a.GetSettingsInt64Value("poller", "max_workers"))
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}
	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup

	for _, sw := range switches {
		if sw.SnmpState != "enabled" || sw.SnmpCommunity == "" {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(sw domain.PoeSwitch) {
			defer wg.Done()
			defer func() { <-sem }()

			uptime, msg := snmpProbeUptime(sw)
			if uptime == "" {
				zap.L().Debug("snmp probe failed",
					zap.String("ip", sw.Ipaddr), zap.String("msg", msg))
				a.repo.MarkSwitchProbe(sw.ID, false, msg)
				return
			}
			a.repo.MarkSwitchProbe(sw.ID, true, msg)
			zap.L().Info("snmp probe ok",
				zap.String("ip", sw.Ipaddr), zap.String("uptime", uptime))
		}(sw)
	}
	wg.Wait()
}

// snmpProbeUptime reads sysUpTime.0 and returns its textual value plus a
// message suitable for LastProbeResult.
func snmpProbeUptime(sw domain.PoeSwitch) (string, string) {
	params := &gosnmp.GoSNMP{
		Target:    sw.Ipaddr,
		Port:      uint16(sw.SnmpPort),
		Community: sw.SnmpCommunity,
		Version:   gosnmp.Version2c,
		Timeout:   2 * time.Second,
		Retries:   1,
	}
	if params.Port == 0 {
		params.Port = 161
	}

	if err := params.Connect(); err != nil {
		return "", err.Error()
	}
	defer params.Conn.Close()

	// sysUpTime.0
	result, err := params.Get([]string{".1.3.6.1.2.1.1.3.0"})
	if err != nil || result == nil || len(result.Variables) == 0 {
		if err != nil {
			return "", err.Error()
		}
		return "", "empty SNMP result"
	}

	v := result.Variables[0]
	uptime := fmt.Sprintf("%v", v.Value)
	if strings.TrimSpace(uptime) == "" {
		return "", "empty sysUpTime"
	}
	return uptime, "uptime " + uptime
}
