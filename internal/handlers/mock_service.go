package handlers

import (
	"context"
	"net/http"
	"time"

	"stagg_bridge/internal/models"
	"stagg_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockKettle struct {
	err error

	powerCalls   []bool
	tempCalls    []float64
	holdCalls    []int
	timeCalls    [][2]int
	enabledCalls []bool
	schTempCalls []float64
	refreshCalls int
}

func (m *mockKettle) SetPower(ctx context.Context, on bool) error {
	m.powerCalls = append(m.powerCalls, on)
	return m.err
}
func (m *mockKettle) SetTemperature(ctx context.Context, tempC float64) error {
	m.tempCalls = append(m.tempCalls, tempC)
	return m.err
}
func (m *mockKettle) SetHold(ctx context.Context, minutes int) error {
	m.holdCalls = append(m.holdCalls, minutes)
	return m.err
}
func (m *mockKettle) SetScheduleTime(ctx context.Context, hour, minute int) error {
	m.timeCalls = append(m.timeCalls, [2]int{hour, minute})
	return m.err
}
func (m *mockKettle) SetScheduleEnabled(ctx context.Context, enabled bool) error {
	m.enabledCalls = append(m.enabledCalls, enabled)
	return m.err
}
func (m *mockKettle) SetScheduleTemperature(ctx context.Context, tempC float64) error {
	m.schTempCalls = append(m.schTempCalls, tempC)
	return m.err
}
func (m *mockKettle) Refresh(ctx context.Context) error {
	m.refreshCalls++
	return m.err
}

type mockMonitoring struct {
	state models.KettleState
	err   error
}

func (m *mockMonitoring) GetState(ctx context.Context) (models.KettleState, error) {
	return m.state, m.err
}

type mockEventLog struct {
	resp     []models.KettleEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.KettleEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

type mockPoller struct{}

func (m *mockPoller) Run(ctx context.Context, tick time.Duration) {}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
