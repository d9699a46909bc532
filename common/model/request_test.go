package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodedDeviceRequest_Type(t *testing.T) {
	tests := []struct {
		name     string
		request  DecodedDeviceRequest
		expected EventType
	}{
		{"measurement", DecodedDeviceRequest{Measurement: &MeasurementCreateRequest{}}, EventTypeMeasurement},
		{"location", DecodedDeviceRequest{Location: &LocationCreateRequest{}}, EventTypeLocation},
		{"alert", DecodedDeviceRequest{Alert: &AlertCreateRequest{}}, EventTypeAlert},
		{"command invocation", DecodedDeviceRequest{CommandInvocation: &CommandInvocationCreateRequest{}}, EventTypeCommandInvocation},
		{"command response", DecodedDeviceRequest{CommandResponse: &CommandResponseCreateRequest{}}, EventTypeCommandResponse},
		{"state change", DecodedDeviceRequest{StateChange: &StateChangeCreateRequest{}}, EventTypeStateChange},
		{"registration", DecodedDeviceRequest{Registration: &RegistrationCreateRequest{}}, EventTypeRegistration},
		{"empty", DecodedDeviceRequest{}, EventType("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.request.Type())
		})
	}
}

func TestDecodedDeviceRequest_Validate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		request DecodedDeviceRequest
		wantErr bool
	}{
		{
			name: "valid measurement",
			request: DecodedDeviceRequest{
				DeviceToken: "dev-1",
				Measurement: &MeasurementCreateRequest{
					EventCreateRequest: EventCreateRequest{EventDate: &now},
					Name:               "engine.temp",
					Value:              98.6,
				},
			},
		},
		{
			name:    "missing device token",
			request: DecodedDeviceRequest{Measurement: &MeasurementCreateRequest{Name: "x"}},
			wantErr: true,
		},
		{
			name:    "no variant",
			request: DecodedDeviceRequest{DeviceToken: "dev-1"},
			wantErr: true,
		},
		{
			name: "multiple variants",
			request: DecodedDeviceRequest{
				DeviceToken: "dev-1",
				Measurement: &MeasurementCreateRequest{Name: "x"},
				Location:    &LocationCreateRequest{},
			},
			wantErr: true,
		},
		{
			name: "alert without type",
			request: DecodedDeviceRequest{
				DeviceToken: "dev-1",
				Alert:       &AlertCreateRequest{Message: "overheating"},
			},
			wantErr: true,
		},
		{
			name: "command invocation missing required parameter",
			request: DecodedDeviceRequest{
				DeviceToken: "dev-1",
				CommandInvocation: &CommandInvocationCreateRequest{
					CommandToken:       "reboot",
					Parameters:         map[string]string{"delay": "5"},
					RequiredParameters: []string{"delay", "mode"},
				},
			},
			wantErr: true,
		},
		{
			name: "command invocation with required parameters present",
			request: DecodedDeviceRequest{
				DeviceToken: "dev-1",
				CommandInvocation: &CommandInvocationCreateRequest{
					CommandToken:       "reboot",
					Parameters:         map[string]string{"delay": "5", "mode": "soft"},
					RequiredParameters: []string{"delay", "mode"},
				},
			},
		},
		{
			name: "registration without device type",
			request: DecodedDeviceRequest{
				DeviceToken:  "dev-1",
				Registration: &RegistrationCreateRequest{},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDecodedDeviceRequest_AlternateID(t *testing.T) {
	req := DecodedDeviceRequest{
		DeviceToken: "dev-1",
		Measurement: &MeasurementCreateRequest{
			EventCreateRequest: EventCreateRequest{AlternateID: "abc123"},
			Name:               "fuel.level",
		},
	}
	assert.Equal(t, "abc123", req.AlternateID())

	reg := DecodedDeviceRequest{
		DeviceToken:  "dev-1",
		Registration: &RegistrationCreateRequest{DeviceTypeToken: "tracker"},
	}
	assert.Empty(t, reg.AlternateID())
}

func TestAlertCreateRequest_ApplyDefaults(t *testing.T) {
	alert := &AlertCreateRequest{Type: "engine.overheat"}
	alert.ApplyDefaults()
	require.Equal(t, AlertSourceDevice, alert.Source)
	require.Equal(t, AlertLevelInfo, alert.Level)

	alert = &AlertCreateRequest{Type: "x", Source: AlertSourceSystem, Level: AlertLevelCritical}
	alert.ApplyDefaults()
	require.Equal(t, AlertSourceSystem, alert.Source)
	require.Equal(t, AlertLevelCritical, alert.Level)
}
