package account

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/firstech/drone-command/pkg/auth"
	"github.com/firstech/drone-command/pkg/protocol"
	"github.com/firstech/drone-command/pkg/vehicle"
)

const (
	testIDToken   = "id-token"
	apiRoot       = "https://api.dronemobile.com/api/v1/"
	vehicleList   = apiRoot + "vehicle?limit=100"
	commandURL    = apiRoot + "iot/command"
	testDeviceKey = "0123456789ab"
)

// newTestAccount returns an Account backed by a token manager holding a valid persisted token, so
// tests exercise the API paths without authentication round trips. Mocking the default transport
// covers both the API client and the token manager's client.
func newTestAccount(t *testing.T) *Account {
	t.Helper()
	tokenDir := t.TempDir()
	manager, err := auth.NewManager("user@example.com", "hunter2", tokenDir)
	if err != nil {
		t.Fatalf("error creating token manager: %s", err)
	}
	token := auth.Token{
		IDToken:      testIDToken,
		RefreshToken: "refresh-token",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	data, err := json.Marshal(&token)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tokenDir, "token.json"), data, 0600); err != nil {
		t.Fatal(err)
	}

	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
	return NewWithManager(manager, "unit-tests")
}

func TestNewRequiresEmail(t *testing.T) {
	if _, err := New("", "hunter2", t.TempDir(), ""); err == nil {
		t.Error("Returned success without email")
	}
}

func TestVehicles(t *testing.T) {
	acct := newTestAccount(t)
	httpmock.RegisterResponder("GET", vehicleList,
		func(req *http.Request) (*http.Response, error) {
			if header := req.Header.Get("Authorization"); header != "Bearer "+testIDToken {
				t.Errorf("Authorization = %q", header)
			}
			return httpmock.NewStringResponse(http.StatusOK, `{
				"results": [
					{
						"id": 12345,
						"device_key": "`+testDeviceKey+`",
						"vehicle_name": "My Car",
						"vehicle_make": "Subaru",
						"vehicle_model": "Outback",
						"vehicle_year": "2020"
					},
					{
						"id": "67890",
						"device_key": "ba9876543210",
						"vehicle_make": "Honda"
					}
				]
			}`), nil
		})

	vehicles, err := acct.Vehicles(context.Background())
	if err != nil {
		t.Fatalf("Vehicles returned error: %s", err)
	}
	if len(vehicles) != 2 {
		t.Fatalf("len(vehicles) = %d", len(vehicles))
	}
	if vehicles[0].ID() != "12345" || vehicles[0].DeviceKey() != testDeviceKey {
		t.Errorf("vehicles[0] = %s", vehicles[0])
	}
	if vehicles[0].Info().Year != 2020 {
		t.Errorf("Year = %d", vehicles[0].Info().Year)
	}
	if vehicles[1].Name() != "Unknown Vehicle" {
		t.Errorf("Name = %q, want placeholder for missing name", vehicles[1].Name())
	}

	// The second vehicle is now cached and should resolve without another list fetch.
	v, err := acct.Vehicle(context.Background(), "67890")
	if err != nil {
		t.Fatalf("Vehicle returned error: %s", err)
	}
	if v.ID() != "67890" {
		t.Errorf("ID() = %q", v.ID())
	}
	if calls := httpmock.GetTotalCallCount(); calls != 1 {
		t.Errorf("API called %d times, want 1", calls)
	}
}

func TestVehicleNotFound(t *testing.T) {
	acct := newTestAccount(t)
	httpmock.RegisterResponder("GET", vehicleList,
		httpmock.NewStringResponder(http.StatusOK, `{"results": []}`))

	_, err := acct.Vehicle(context.Background(), "12345")
	if !errors.Is(err, protocol.ErrVehicleNotFound) {
		t.Errorf("Vehicle returned %v, want ErrVehicleNotFound", err)
	}
}

func TestVehicleStatus(t *testing.T) {
	acct := newTestAccount(t)
	httpmock.RegisterResponder("GET", apiRoot+"vehicle/12345",
		httpmock.NewStringResponder(http.StatusOK, `{
			"id": 12345,
			"device_key": "`+testDeviceKey+`",
			"last_known_state": {
				"controller": {"engine_on": true, "armed": false, "main_battery_voltage": 12.4},
				"mileage": 42000.5,
				"latitude": 47.6,
				"longitude": -122.3,
				"timestamp": "2024-05-01T12:30:00Z"
			}
		}`))

	status, err := acct.VehicleStatus(context.Background(), "12345")
	if err != nil {
		t.Fatalf("VehicleStatus returned error: %s", err)
	}
	if !status.Running || status.Armed {
		t.Errorf("Running = %v, Armed = %v", status.Running, status.Armed)
	}
	if status.BatteryVoltage == nil || *status.BatteryVoltage != 12.4 {
		t.Errorf("BatteryVoltage = %v", status.BatteryVoltage)
	}
	if status.Location == nil || status.Location.Latitude != 47.6 {
		t.Errorf("Location = %+v", status.Location)
	}
}

func TestVehicleStatusNotFound(t *testing.T) {
	acct := newTestAccount(t)
	httpmock.RegisterResponder("GET", apiRoot+"vehicle/12345",
		httpmock.NewStringResponder(http.StatusNotFound, `{"detail": "Not found."}`))

	_, err := acct.VehicleStatus(context.Background(), "12345")
	if !errors.Is(err, protocol.ErrVehicleNotFound) {
		t.Errorf("VehicleStatus returned %v, want ErrVehicleNotFound", err)
	}
}

func TestSendCommand(t *testing.T) {
	acct := newTestAccount(t)
	httpmock.RegisterResponder("POST", commandURL,
		func(req *http.Request) (*http.Response, error) {
			var payload map[string]string
			if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
				t.Fatalf("error decoding payload: %s", err)
			}
			if payload["device_key"] != testDeviceKey || payload["command"] != vehicle.CommandRemoteStart || payload["device_type"] != vehicle.DeviceTypeVehicle {
				t.Errorf("payload = %v", payload)
			}
			return httpmock.NewStringResponse(http.StatusOK,
				`{"parsed": {"success": true, "message": "Command sent"}}`), nil
		})

	response, err := acct.SendCommand(context.Background(), testDeviceKey, vehicle.CommandRemoteStart, vehicle.DeviceTypeVehicle)
	if err != nil {
		t.Fatalf("SendCommand returned error: %s", err)
	}
	if !response.Success || response.Message != "Command sent" {
		t.Errorf("response = %+v", response)
	}
	if response.Command != vehicle.CommandRemoteStart || response.DeviceKey != testDeviceKey {
		t.Errorf("response = %+v", response)
	}
}

func TestSendCommandRejectsUnknownName(t *testing.T) {
	acct := newTestAccount(t)
	_, err := acct.SendCommand(context.Background(), testDeviceKey, "SELF_DESTRUCT", vehicle.DeviceTypeVehicle)
	if !errors.Is(err, protocol.ErrInvalidCommand) {
		t.Errorf("SendCommand returned %v, want ErrInvalidCommand", err)
	}
	if calls := httpmock.GetTotalCallCount(); calls != 0 {
		t.Errorf("API called %d times for invalid command", calls)
	}
}

func TestSendCommandFailure(t *testing.T) {
	acct := newTestAccount(t)
	httpmock.RegisterResponder("POST", commandURL,
		httpmock.NewStringResponder(http.StatusFailedDependency,
			`{"parsed": {"detail": "Vehicle did not respond"}}`))

	_, err := acct.SendCommand(context.Background(), testDeviceKey, vehicle.CommandRemoteStart, vehicle.DeviceTypeVehicle)
	var cmdErr *protocol.FailedCommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("SendCommand returned %v, want FailedCommandError", err)
	}
	if cmdErr.Detail != "Vehicle did not respond" {
		t.Errorf("Detail = %q", cmdErr.Detail)
	}
}

func TestSendCommandRateLimited(t *testing.T) {
	acct := newTestAccount(t)
	httpmock.RegisterResponder("POST", commandURL,
		httpmock.NewStringResponder(http.StatusTooManyRequests, ""))

	_, err := acct.SendCommand(context.Background(), testDeviceKey, vehicle.CommandArm, vehicle.DeviceTypeVehicle)
	if !errors.Is(err, protocol.ErrRateLimited) {
		t.Fatalf("SendCommand returned %v, want ErrRateLimited", err)
	}
	if !protocol.Temporary(err) {
		t.Error("rate limit errors should be temporary")
	}
}

func TestRetryAfterTokenRejected(t *testing.T) {
	acct := newTestAccount(t)
	apiCalls := 0
	httpmock.RegisterResponder("GET", vehicleList,
		func(req *http.Request) (*http.Response, error) {
			apiCalls++
			if apiCalls == 1 {
				return httpmock.NewStringResponse(http.StatusUnauthorized, `{"detail": "expired"}`), nil
			}
			if header := req.Header.Get("Authorization"); header != "Bearer fresh-id-token" {
				t.Errorf("Authorization after refresh = %q", header)
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"results": []}`), nil
		})
	httpmock.RegisterResponder("POST", auth.DefaultAuthURL,
		httpmock.NewStringResponder(http.StatusOK, `{
			"AuthenticationResult": {
				"IdToken": "fresh-id-token",
				"TokenType": "Bearer",
				"ExpiresIn": 3600
			}
		}`))

	if _, err := acct.Vehicles(context.Background()); err != nil {
		t.Fatalf("Vehicles returned error: %s", err)
	}
	if apiCalls != 2 {
		t.Errorf("API called %d times, want 2", apiCalls)
	}
}

func TestPersistentRejectionFails(t *testing.T) {
	acct := newTestAccount(t)
	httpmock.RegisterResponder("GET", vehicleList,
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"detail": "expired"}`))
	httpmock.RegisterResponder("POST", auth.DefaultAuthURL,
		httpmock.NewStringResponder(http.StatusOK, `{
			"AuthenticationResult": {
				"IdToken": "fresh-id-token",
				"TokenType": "Bearer",
				"ExpiresIn": 3600
			}
		}`))

	_, err := acct.Vehicles(context.Background())
	var authErr *protocol.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("Vehicles returned %v, want AuthenticationError", err)
	}
	if info := httpmock.GetCallCountInfo(); info["GET "+vehicleList] != 2 {
		t.Errorf("API called %d times, want 2", info["GET "+vehicleList])
	}
}

func TestConcurrentVehicleLookups(t *testing.T) {
	acct := newTestAccount(t)
	httpmock.RegisterResponder("GET", vehicleList,
		httpmock.NewStringResponder(http.StatusOK, `{
			"results": [
				{"id": 12345, "device_key": "`+testDeviceKey+`", "vehicle_name": "My Car"},
				{"id": 67890, "device_key": "ba9876543210", "vehicle_name": "Truck"}
			]
		}`))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := acct.Vehicles(context.Background()); err != nil {
				t.Errorf("Vehicles returned error: %s", err)
			}
			if _, err := acct.Vehicle(context.Background(), "12345"); err != nil {
				t.Errorf("Vehicle returned error: %s", err)
			}
		}()
	}
	wg.Wait()

	v, err := acct.Vehicle(context.Background(), "67890")
	if err != nil {
		t.Fatalf("Vehicle returned error: %s", err)
	}
	if v.Name() != "Truck" {
		t.Errorf("Name() = %q", v.Name())
	}
}

func TestBuildUserAgent(t *testing.T) {
	agent := buildUserAgent("unit-tests")
	if agent == "" {
		t.Fatal("empty user agent")
	}
	if agent != "unit-tests drone-sdk/"+strings.TrimSpace(libraryVersion) {
		t.Errorf("buildUserAgent() = %q", agent)
	}
}
