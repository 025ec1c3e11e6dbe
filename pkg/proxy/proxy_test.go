package proxy_test

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/firstech/drone-command/mocks"
	"github.com/firstech/drone-command/pkg/protocol"
	"github.com/firstech/drone-command/pkg/proxy"
	"github.com/firstech/drone-command/pkg/vehicle"
)

const (
	vehicleID = "12345"
	deviceKey = "0123456789ab"
)

var vehicleRecord = fmt.Sprintf(`{
	"id": %s,
	"device_key": "%s",
	"vehicle_name": "My Car",
	"vehicle_make": "Subaru",
	"vehicle_model": "Outback",
	"vehicle_year": "2020"
}`, vehicleID, deviceKey)

var _ = Describe("Proxy", func() {
	var (
		ctrl        *gomock.Controller
		p           *proxy.Proxy
		mockAccount *mocks.ProxyAccount
		car         *vehicle.Vehicle
	)

	sendRequest := func(method, path string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewReader(body))
		rr := httptest.NewRecorder()
		p.ServeHTTP(rr, req)
		return rr
	}

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		mockAccount = mocks.NewProxyAccount(ctrl)
		info, err := vehicle.UnmarshalInfo([]byte(vehicleRecord))
		Expect(err).NotTo(HaveOccurred())
		car = vehicle.New(mockAccount, info)
		p = proxy.New(mockAccount)
		DeferCleanup(func() {
			ctrl.Finish()
		})
	})

	Context("vehicle list", func() {
		It("returns the account's vehicle records", func() {
			mockAccount.EXPECT().Vehicles(gomock.Any()).Return([]*vehicle.Vehicle{car}, nil)

			rr := sendRequest(http.MethodGet, "/api/v1/vehicles", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(fmt.Sprintf(`{"results": [%s]}`, vehicleRecord)))
		})

		It("serves repeated requests from cache", func() {
			mockAccount.EXPECT().Vehicles(gomock.Any()).Return([]*vehicle.Vehicle{car}, nil).Times(1)

			Expect(sendRequest(http.MethodGet, "/api/v1/vehicles", nil).Code).To(Equal(http.StatusOK))
			Expect(sendRequest(http.MethodGet, "/api/v1/vehicles", nil).Code).To(Equal(http.StatusOK))
		})

		It("translates upstream authentication failures", func() {
			mockAccount.EXPECT().Vehicles(gomock.Any()).Return(nil, protocol.ErrInvalidCredentials)

			rr := sendRequest(http.MethodGet, "/api/v1/vehicles", nil)
			Expect(rr.Code).To(Equal(http.StatusBadGateway))
		})
	})

	Context("vehicle status", func() {
		It("passes the upstream record through", func() {
			raw := []byte(`{"id": 12345, "last_known_state": {"controller": {"engine_on": true}}}`)
			status, err := vehicle.UnmarshalStatus(raw)
			Expect(err).NotTo(HaveOccurred())
			mockAccount.EXPECT().Vehicles(gomock.Any()).Return([]*vehicle.Vehicle{car}, nil)
			mockAccount.EXPECT().VehicleStatus(gomock.Any(), vehicleID).Return(status, nil)

			rr := sendRequest(http.MethodGet, "/api/v1/vehicles/"+vehicleID, nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.Bytes()).To(MatchJSON(raw))
		})

		It("returns not found for vehicles outside the account", func() {
			mockAccount.EXPECT().Vehicles(gomock.Any()).Return([]*vehicle.Vehicle{car}, nil)

			rr := sendRequest(http.MethodGet, "/api/v1/vehicles/99999", nil)
			Expect(rr.Code).To(Equal(http.StatusNotFound))
		})
	})

	Context("vehicle commands", func() {
		It("sends the mapped command to the vehicle's module", func() {
			mockAccount.EXPECT().Vehicles(gomock.Any()).Return([]*vehicle.Vehicle{car}, nil)
			mockAccount.EXPECT().
				SendCommand(gomock.Any(), deviceKey, vehicle.CommandRemoteStart, vehicle.DeviceTypeVehicle).
				Return(&vehicle.CommandResponse{Success: true, Message: "Command sent", Command: vehicle.CommandRemoteStart}, nil)

			rr := sendRequest(http.MethodPost, "/api/v1/vehicles/"+vehicleID+"/command/start", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`{"response": {"success": true, "message": "Command sent", "command": "REMOTE_START"}}`))
		})

		It("targets the controller module for status polls", func() {
			mockAccount.EXPECT().Vehicles(gomock.Any()).Return([]*vehicle.Vehicle{car}, nil)
			mockAccount.EXPECT().
				SendCommand(gomock.Any(), deviceKey, vehicle.CommandDeviceStatus, vehicle.DeviceTypeController).
				Return(&vehicle.CommandResponse{Success: true, Command: vehicle.CommandDeviceStatus}, nil)

			rr := sendRequest(http.MethodPost, "/api/v1/vehicles/"+vehicleID+"/command/poll", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
		})

		It("returns not found for unrecognized command names", func() {
			rr := sendRequest(http.MethodPost, "/api/v1/vehicles/"+vehicleID+"/command/self_destruct", nil)
			Expect(rr.Code).To(Equal(http.StatusNotFound))
		})

		It("returns failed dependency when the device cannot execute", func() {
			mockAccount.EXPECT().Vehicles(gomock.Any()).Return([]*vehicle.Vehicle{car}, nil)
			mockAccount.EXPECT().
				SendCommand(gomock.Any(), deviceKey, vehicle.CommandRemoteStart, vehicle.DeviceTypeVehicle).
				Return(nil, &protocol.FailedCommandError{Command: vehicle.CommandRemoteStart, Detail: "vehicle did not respond"})

			rr := sendRequest(http.MethodPost, "/api/v1/vehicles/"+vehicleID+"/command/start", nil)
			Expect(rr.Code).To(Equal(http.StatusFailedDependency))
			Expect(rr.Body.String()).To(ContainSubstring("vehicle did not respond"))
		})

		It("propagates rate limiting", func() {
			mockAccount.EXPECT().Vehicles(gomock.Any()).Return([]*vehicle.Vehicle{car}, nil)
			mockAccount.EXPECT().
				SendCommand(gomock.Any(), deviceKey, vehicle.CommandArm, vehicle.DeviceTypeVehicle).
				Return(nil, protocol.ErrRateLimited)

			rr := sendRequest(http.MethodPost, "/api/v1/vehicles/"+vehicleID+"/command/lock", nil)
			Expect(rr.Code).To(Equal(http.StatusTooManyRequests))
		})

		It("rejects commands via GET", func() {
			rr := sendRequest(http.MethodGet, "/api/v1/vehicles/"+vehicleID+"/command/start", nil)
			Expect(rr.Code).To(Equal(http.StatusNotFound))
		})
	})

	It("returns 404 for paths outside /api/v1/vehicles", func() {
		Expect(sendRequest(http.MethodGet, "/unknown", nil).Code).To(Equal(http.StatusNotFound))
		Expect(sendRequest(http.MethodGet, "/api/v2/vehicles", nil).Code).To(Equal(http.StatusNotFound))
	})
})
