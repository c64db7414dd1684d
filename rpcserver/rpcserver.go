// Package rpcserver is the RPC-style tool interface for remote model
// authoring: a narrow JSON-message protocol carried over a long-lived
// websocket connection, the same gorilla/websocket
// Upgrader/ReadJSON/WriteJSON idiom the onuse-worldgenerator_go reference
// server uses for its live client connections, adapted from mesh updates
// to FillBox/SetCell/Prepare/Step tool calls against a voxel model.
package rpcserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/voxeltherm/thermovox/material"
	"github.com/voxeltherm/thermovox/params"
	"github.com/voxeltherm/thermovox/sim"
	"github.com/voxeltherm/thermovox/surface"
	"github.com/voxeltherm/thermovox/voxel"
)

// Request is one tool call sent by the client.
type Request struct {
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args"`
}

// Response is the server's reply to one Request.
type Response struct {
	OK     bool        `json:"ok"`
	Error  string      `json:"error,omitempty"`
	Result interface{} `json:"result,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Session holds the per-connection model/simulator state a sequence of
// tool calls operates on. A Session is single-threaded: requests on one
// connection are handled one at a time, in arrival order.
type Session struct {
	mu  sync.Mutex
	m   *voxel.Model
	sim *sim.Simulator
}

type newModelArgs struct {
	Params    params.Parameters  `json:"params"`
	Materials []material.Material `json:"materials"`
}

type fillBoxArgs struct {
	From     [3]float64 `json:"from"`
	To       [3]float64 `json:"to"`
	Material string     `json:"material"`
}

type setCellArgs struct {
	I        int    `json:"i"`
	J        int    `json:"j"`
	K        int    `json:"k"`
	Material string `json:"material"`
}

type stepArgs struct {
	N int `json:"n"`
}

func (s *Session) handle(req Request) Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Op {
	case "newModel":
		var a newModelArgs
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return errResponse(err)
		}
		p, err := params.New(a.Params)
		if err != nil {
			return errResponse(err)
		}
		table, err := material.NewTable(a.Materials)
		if err != nil {
			return errResponse(err)
		}
		m, err := voxel.New(p, table)
		if err != nil {
			return errResponse(err)
		}
		s.m = m
		s.sim = nil
		return Response{OK: true}

	case "fillBox":
		if s.m == nil {
			return errResponse(fmt.Errorf("rpcserver: no model; call newModel first"))
		}
		var a fillBoxArgs
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return errResponse(err)
		}
		from := voxel.NewPoint3(a.From[0], a.From[1], a.From[2])
		to := voxel.NewPoint3(a.To[0], a.To[1], a.To[2])
		if err := s.m.FillBox(from, to, a.Material, nil); err != nil {
			return errResponse(err)
		}
		return Response{OK: true}

	case "setCell":
		if s.m == nil {
			return errResponse(fmt.Errorf("rpcserver: no model; call newModel first"))
		}
		var a setCellArgs
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return errResponse(err)
		}
		if err := s.m.SetCell(a.I, a.J, a.K, a.Material); err != nil {
			return errResponse(err)
		}
		return Response{OK: true}

	case "prepare":
		if s.m == nil {
			return errResponse(fmt.Errorf("rpcserver: no model; call newModel first"))
		}
		if err := s.m.Prepare(1.2, 1005, surface.Detect); err != nil {
			return errResponse(err)
		}
		sm, err := sim.New(s.m, sim.Options{})
		if err != nil {
			return errResponse(err)
		}
		s.sim = sm
		return Response{OK: true}

	case "step":
		if s.sim == nil {
			return errResponse(fmt.Errorf("rpcserver: model not prepared; call prepare first"))
		}
		var a stepArgs
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return errResponse(err)
		}
		if a.N <= 0 {
			a.N = 1
		}
		for i := 0; i < a.N; i++ {
			if err := s.sim.AdvanceOne(); err != nil {
				return errResponse(err)
			}
		}
		mean, stddev := s.sim.Bilan().DriftStats()
		return Response{OK: true, Result: map[string]interface{}{
			"state":      s.sim.State().String(),
			"driftMean":  mean,
			"driftStdev": stddev,
			"lastDrift":  s.sim.Bilan().LastDrift(),
		}}

	default:
		return errResponse(fmt.Errorf("rpcserver: unknown op %q", req.Op))
	}
}

func errResponse(err error) Response {
	return Response{OK: false, Error: err.Error()}
}

// ServeWS upgrades r to a websocket connection and serves Request/Response
// pairs on it until the client disconnects or sends malformed JSON.
func ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s := &Session{}
	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		resp := s.handle(req)
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

// ListenAndServe starts an HTTP server on addr exposing the tool interface
// at "/ws".
func ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ServeWS)
	return http.ListenAndServe(addr, mux)
}
