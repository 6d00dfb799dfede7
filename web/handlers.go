package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mbocsi/telemux/services"
)

// commandBody is the JSON accepted by POST /api/commands
type commandBody struct {
	ActuatorID string    `json:"actuator_id"`
	Command    string    `json:"command"`
	Value      float64   `json:"value"`
	Args       []float64 `json:"args"`
	Dest       string    `json:"dest"`
	WaitForAck bool      `json:"wait_for_ack"`
	TimeoutMs  int       `json:"timeout_ms"`
}

func (a *API) HandleHealth(wr http.ResponseWriter, r *http.Request) {
	stats := a.services.Bridge.Stats()
	status := http.StatusOK
	body := map[string]interface{}{
		"status":  "ok",
		"running": stats.Running,
		"uptime":  stats.Uptime,
	}
	if !stats.Running {
		status = http.StatusServiceUnavailable
		body["status"] = "stopped"
	}
	writeJSON(wr, status, body)
}

func (a *API) HandleKinds(wr http.ResponseWriter, r *http.Request) {
	writeJSON(wr, http.StatusOK, a.services.State.ListKinds())
}

func (a *API) HandleLatest(wr http.ResponseWriter, r *http.Request) {
	writeJSON(wr, http.StatusOK, a.services.State.ListLatest())
}

func (a *API) HandleLatestKind(wr http.ResponseWriter, r *http.Request) {
	value, err := a.services.State.GetLatest(chi.URLParam(r, "kind"))
	if err != nil {
		a.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, value)
}

func (a *API) HandleClients(wr http.ResponseWriter, r *http.Request) {
	clients, err := a.services.Client.ListClients()
	if err != nil {
		a.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, clients)
}

func (a *API) HandleClientDetail(wr http.ResponseWriter, r *http.Request) {
	client, err := a.services.Client.GetClient(chi.URLParam(r, "id"))
	if err != nil {
		a.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, client)
}

func (a *API) HandleClientRename(wr http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := r.ParseForm(); err != nil {
		a.handleError(wr, services.ServiceError{Code: services.ErrCodeInvalidInput, Message: "Invalid form data", Cause: err})
		return
	}

	if err := a.services.Client.RenameClient(id, r.FormValue("name")); err != nil {
		a.handleError(wr, err)
		return
	}
	client, err := a.services.Client.GetClient(id)
	if err != nil {
		a.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, client)
}

func (a *API) HandleTransports(wr http.ResponseWriter, r *http.Request) {
	transports, err := a.services.Transport.ListTransports()
	if err != nil {
		a.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, transports)
}

func (a *API) HandleTransportDetail(wr http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "i"))
	if err != nil {
		a.handleError(wr, services.ServiceError{Code: services.ErrCodeInvalidInput, Message: "Transport index must be a number"})
		return
	}
	transport, err := a.services.Transport.GetTransport(index)
	if err != nil {
		a.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, transport)
}

func (a *API) HandleStats(wr http.ResponseWriter, r *http.Request) {
	writeJSON(wr, http.StatusOK, a.services.Bridge.Stats())
}

// HandleSendCommand encodes an actuator command and queues it for the
// realtime node. With wait_for_ack the response carries the node's Ack.
func (a *API) HandleSendCommand(wr http.ResponseWriter, r *http.Request) {
	var body commandBody
	dec := json.NewDecoder(http.MaxBytesReader(wr, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		a.handleError(wr, services.ServiceError{Code: services.ErrCodeInvalidInput, Message: "Invalid command body", Cause: err})
		return
	}

	receipt, err := a.services.Command.SendActuatorCommand(r.Context(), services.CommandRequest{
		ActuatorID: body.ActuatorID,
		Command:    body.Command,
		Value:      body.Value,
		Args:       body.Args,
		Dest:       body.Dest,
		WaitForAck: body.WaitForAck,
		Timeout:    time.Duration(body.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		a.handleError(wr, err)
		return
	}

	status := http.StatusAccepted
	if receipt.Ack != nil {
		status = http.StatusOK
	}
	writeJSON(wr, status, receipt)
}

func writeJSON(wr http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		data = []byte(`{"code":"` + services.ErrCodeInternal + `","error":"Failed to encode response"}`)
		status = http.StatusInternalServerError
	}
	wr.Header().Set("Content-Type", "application/json")
	wr.WriteHeader(status)
	if _, err := wr.Write(append(data, '\n')); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

// handleError handles service errors with proper HTTP status codes
func (a *API) handleError(wr http.ResponseWriter, err error) {
	var serviceErr services.ServiceError
	if !errors.As(err, &serviceErr) {
		slog.Error("Unexpected API error", "error", err)
		writeJSON(wr, http.StatusInternalServerError, map[string]string{
			"code":  services.ErrCodeInternal,
			"error": "Internal server error",
		})
		return
	}

	status := http.StatusInternalServerError
	switch serviceErr.Code {
	case services.ErrCodeNotFound:
		status = http.StatusNotFound
	case services.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case services.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	case services.ErrCodeUnavailable:
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		slog.Error("Service error", "code", serviceErr.Code, "error", err)
	} else {
		slog.Debug("Rejected API request", "code", serviceErr.Code, "error", err)
	}

	writeJSON(wr, status, map[string]string{
		"code":  serviceErr.Code,
		"error": serviceErr.Error(),
	})
}
