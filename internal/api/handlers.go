package api

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/twibridge/hardware/mcu"
)

type errorResponse struct {
	Error string `json:"error"`
}

type sendResponse struct {
	Status string `json:"status"`
	Relay  int    `json:"relay"`
	State  string `json:"state"`
}

type relayStatusResponse struct {
	Source string          `json:"source"`
	Relays map[string]bool `json:"relays"`
}

type dataResponse struct {
	Data     map[string]float64 `json:"data"`
	Complete bool               `json:"complete"`
	Missing  []string           `json:"missing,omitempty"`
	Raw      string             `json:"raw"`
	Error    string             `json:"error,omitempty"`
}

// relay is number or numeric string
type relayControlRequest struct {
	Relay json.RawMessage `json:"relay"`
	State string          `json:"state"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// sendStatus maps command errors to HTTP codes.
func sendStatus(err error) int {
	switch {
	case mcu.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (self *Server) handleData(w http.ResponseWriter, r *http.Request) {
	reading, err := self.client.ReadTelemetry()
	if err != nil && !mcu.IsIncomplete(err) {
		self.Log.Errorf("api /data err=%v", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	resp := dataResponse{
		Data:     reading.Fields(),
		Complete: reading.Complete(),
		Missing:  reading.Missing(),
		Raw:      reading.Raw(),
	}
	if err != nil {
		resp.Complete = false
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (self *Server) handleRelayStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, relayStatusResponse{
		Source: "last_commanded",
		Relays: self.client.Relays().Named(),
	})
}

func parseRelay(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errors.NotValidf("relay missing")
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, errors.NotValidf("relay=%s", raw)
	}
	return parseRelayString(s)
}

func parseRelayString(s string) (int, error) {
	if s == "" {
		return 0, errors.NotValidf("relay missing")
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.NotValidf("relay=%q", s)
	}
	return n, nil
}

func (self *Server) send(w http.ResponseWriter, relay int, state string) {
	on, err := mcu.ParseState(state)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	intent := mcu.Intent{Relay: relay, On: on}
	if err = self.client.Send(intent); err != nil {
		self.Log.Errorf("api send %s err=%v", intent, err)
		writeError(w, sendStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{Status: "success", Relay: relay, State: intent.StateString()})
}

func (self *Server) handleRelayControl(w http.ResponseWriter, r *http.Request) {
	var req relayControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	relay, err := parseRelay(req.Relay)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	self.send(w, relay, req.State)
}

func (self *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	relay, err := parseRelayString(q.Get("num"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	self.send(w, relay, q.Get("state"))
}

func (self *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	b, err := ioutil.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	intent, err := self.client.SendText(string(b))
	if err != nil {
		self.Log.Errorf("api /command text=%q err=%v", b, err)
		writeError(w, sendStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{Status: "success", Relay: intent.Relay, State: intent.StateString()})
}

func (self *Server) handleStat(w http.ResponseWriter, r *http.Request) {
	var lastRead string
	if t := self.client.LastRead(); !t.IsZero() {
		lastRead = t.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, struct {
		mcu.Stat
		LastRead string `json:"last_read,omitempty"`
	}{self.client.Stat(), lastRead})
}
