package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pion/webrtc/v4"
)

// ICEOptions are the raw STUN/TURN settings. ServersJSON, when set, replaces
// the individual fields.
type ICEOptions struct {
	ServersJSON string
	STUNServer  string
	TURNServer  string
	TURNUser    string
	TURNPass    string
}

func (o ICEOptions) withEnv() ICEOptions {
	o.ServersJSON = firstNonEmpty(o.ServersJSON, os.Getenv(EnvICEServersJSON))
	o.STUNServer = firstNonEmpty(o.STUNServer, os.Getenv(EnvSTUNServer), DefaultSTUN)
	o.TURNServer = firstNonEmpty(o.TURNServer, os.Getenv(EnvTURNServer))
	o.TURNUser = firstNonEmpty(o.TURNUser, os.Getenv(EnvTURNUser))
	o.TURNPass = firstNonEmpty(o.TURNPass, os.Getenv(EnvTURNPass))
	return o
}

// Servers builds the ICE server list browsers and the headless peer should use.
func (o ICEOptions) Servers() ([]webrtc.ICEServer, error) {
	if strings.TrimSpace(o.ServersJSON) != "" {
		servers, err := o.jsonServers()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvICEServersJSON, err)
		}
		return servers, nil
	}

	var servers []webrtc.ICEServer
	if urls := o.GetSTUNServers(); len(urls) > 0 {
		s := webrtc.ICEServer{URLs: urls}
		if err := checkICEServer(s); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvSTUNServer, err)
		}
		servers = append(servers, s)
	}
	if urls := o.GetTURNServers(); len(urls) > 0 {
		s := webrtc.ICEServer{
			URLs:       urls,
			Username:   strings.TrimSpace(o.TURNUser),
			Credential: strings.TrimSpace(o.TURNPass),
		}
		if err := checkICEServer(s); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvTURNServer, err)
		}
		servers = append(servers, s)
	}
	return servers, nil
}

// GetSTUNServers returns the configured STUN URLs.
func (o ICEOptions) GetSTUNServers() []string {
	return urlList(o.STUNServer)
}

// GetTURNServers returns the configured TURN URLs, nil when none are set.
func (o ICEOptions) GetTURNServers() []string {
	return urlList(o.TURNServer)
}

// jsonServers reads ServersJSON as a browser RTCIceServer list, for example
// [{"urls":"stun:stun.l.google.com:19302"}]. "urls" may be a string or an
// array, as in the browser API.
func (o ICEOptions) jsonServers() ([]webrtc.ICEServer, error) {
	var entries []struct {
		URLs       json.RawMessage `json:"urls"`
		Username   string          `json:"username"`
		Credential string          `json:"credential"`
	}
	if err := json.Unmarshal([]byte(o.ServersJSON), &entries); err != nil {
		return nil, err
	}

	servers := make([]webrtc.ICEServer, 0, len(entries))
	for i, e := range entries {
		var urls []string
		if err := json.Unmarshal(e.URLs, &urls); err != nil {
			var one string
			if err := json.Unmarshal(e.URLs, &one); err != nil {
				return nil, fmt.Errorf("entry %d: urls must be a string or a list of strings", i)
			}
			urls = []string{one}
		}

		s := webrtc.ICEServer{
			URLs:     urlList(strings.Join(urls, ",")),
			Username: strings.TrimSpace(e.Username),
		}
		if cred := strings.TrimSpace(e.Credential); cred != "" {
			s.Credential = cred
		}
		if err := checkICEServer(s); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		servers = append(servers, s)
	}
	return servers, nil
}

// urlList splits a comma separated setting, dropping blanks.
func urlList(value string) []string {
	var urls []string
	for part := range strings.SplitSeq(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			urls = append(urls, part)
		}
	}
	return urls
}

// checkICEServer accepts stun/stuns URLs, and turn/turns URLs that come with
// a username and credential.
func checkICEServer(s webrtc.ICEServer) error {
	if len(s.URLs) == 0 {
		return fmt.Errorf("no urls")
	}

	turn := false
	for _, u := range s.URLs {
		scheme, _, _ := strings.Cut(u, ":")
		switch scheme {
		case "stun", "stuns":
		case "turn", "turns":
			turn = true
		default:
			return fmt.Errorf("%q is not a stun or turn url", u)
		}
	}
	if !turn {
		return nil
	}

	if s.Username == "" {
		return fmt.Errorf("turn server needs a username")
	}
	if cred, _ := s.Credential.(string); cred == "" {
		return fmt.Errorf("turn server needs a credential")
	}
	return nil
}
