package inventory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/evacnet/poekeeper/internal/domain"
	"github.com/evacnet/poekeeper/internal/switchctl"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	dbpath := filepath.Join(t.TempDir(), "poekeeper_test.db")
	db, err := gorm.Open(sqlite.Open(dbpath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrator().AutoMigrate(domain.Tables...))

	repo, err := NewRepository(db)
	require.NoError(t, err)
	return repo
}

func seedFabric(t *testing.T, repo *Repository) (swID, devID int64) {
	t.Helper()
	sw := &domain.PoeSwitch{
		Name:     "rack-a",
		Ipaddr:   "192.168.10.2",
		Password: "secret",
		Status:   "enabled",
	}
	require.NoError(t, repo.SaveSwitch(sw))

	dev := &domain.PoeDevice{
		Name:            "speaker-1",
		SwitchID:        sw.ID,
		Port:            3,
		LinkedPagingIds: "7",
	}
	require.NoError(t, repo.SaveDevice(dev))
	return sw.ID, dev.ID
}

func TestSaveAssignsIDsAndDefaults(t *testing.T) {
	repo := testRepo(t)
	swID, devID := seedFabric(t, repo)

	assert.NotZero(t, swID)
	assert.NotZero(t, devID)

	sw, err := repo.GetSwitch(swID)
	require.NoError(t, err)
	assert.Equal(t, string(switchctl.SwitchTypeGS30xEP), sw.SwitchType)

	dev, err := repo.GetDevice(devID)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeAuto, dev.Mode)
}

func TestResolve(t *testing.T) {
	repo := testRepo(t)
	swID, devID := seedFabric(t, repo)

	endpoint, found := repo.Resolve(devID)
	require.True(t, found)
	assert.Equal(t, swID, endpoint.SwitchID)
	assert.Equal(t, 3, endpoint.Port)
	assert.Equal(t, "192.168.10.2", endpoint.Credentials.Ipaddr)
	assert.Equal(t, "secret", endpoint.Credentials.Password)

	_, found = repo.Resolve(999999)
	assert.False(t, found)
}

func TestResolveSkipsDisabledSwitch(t *testing.T) {
	repo := testRepo(t)
	swID, devID := seedFabric(t, repo)

	sw, err := repo.GetSwitch(swID)
	require.NoError(t, err)
	sw.Status = "disabled"
	require.NoError(t, repo.SaveSwitch(sw))

	_, found := repo.Resolve(devID)
	assert.False(t, found)
}

func TestControlDevicesAndActivePaging(t *testing.T) {
	repo := testRepo(t)
	_, devID := seedFabric(t, repo)

	require.NoError(t, repo.db.Create(&domain.PagingDevice{ID: 7, Name: "paging-a", Active: false}).Error)
	require.NoError(t, repo.db.Create(&domain.PagingDevice{ID: 8, Name: "paging-b", Active: false}).Error)

	links := repo.ControlDevices()
	require.Len(t, links, 1)
	assert.Equal(t, devID, links[0].ID)
	assert.Equal(t, domain.ModeAuto, links[0].Mode)
	assert.Equal(t, []int64{7}, links[0].LinkedPagingIDs)

	assert.Empty(t, repo.ActivePagingIDs())
	require.NoError(t, repo.SetPagingActive(7, true))
	assert.Equal(t, []int64{7}, repo.ActivePagingIDs())
	require.NoError(t, repo.SetPagingActive(7, false))
	assert.Empty(t, repo.ActivePagingIDs())
}

func TestCommitResultsSuccessMovesState(t *testing.T) {
	repo := testRepo(t)
	swID, devID := seedFabric(t, repo)

	repo.CommitResults("api", []switchctl.DeviceResult{
		{DeviceID: devID, SwitchID: swID, Port: 3, Success: true},
	}, map[int64]bool{devID: true})

	dev, err := repo.GetDevice(devID)
	require.NoError(t, err)
	assert.True(t, dev.Enabled)

	sw, err := repo.GetSwitch(swID)
	require.NoError(t, err)
	assert.True(t, sw.Online)
	assert.False(t, sw.LastSeenAt.IsZero())

	logs, err := repo.RecentToggleLogs(10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "api", logs[0].Source)
	assert.True(t, logs[0].Success)
	assert.NotZero(t, logs[0].ID)
}

func TestCommitResultsFailureKeepsState(t *testing.T) {
	repo := testRepo(t)
	swID, devID := seedFabric(t, repo)

	repo.CommitResults("keepalive", []switchctl.DeviceResult{
		{DeviceID: devID, SwitchID: swID, Port: 3, Success: false, Error: "toggle rejected"},
	}, map[int64]bool{devID: true})

	dev, err := repo.GetDevice(devID)
	require.NoError(t, err)
	assert.False(t, dev.Enabled)

	logs, err := repo.RecentToggleLogs(10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
	assert.Equal(t, "toggle rejected", logs[0].ErrMsg)
	assert.Equal(t, "keepalive", logs[0].Source)
}

func TestMarkSwitchProbe(t *testing.T) {
	repo := testRepo(t)
	swID, _ := seedFabric(t, repo)

	repo.MarkSwitchProbe(swID, false, "connect timeout")
	sw, err := repo.GetSwitch(swID)
	require.NoError(t, err)
	assert.False(t, sw.Online)
	assert.Equal(t, "connect timeout", sw.LastProbeResult)
	assert.True(t, sw.LastSeenAt.IsZero())

	repo.MarkSwitchProbe(swID, true, "ok")
	sw, err = repo.GetSwitch(swID)
	require.NoError(t, err)
	assert.True(t, sw.Online)
	assert.False(t, sw.LastSeenAt.IsZero())
}
