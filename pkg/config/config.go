package config

// Server is a shared HTTP(S) endpoint config.
type Server struct {
	Address  string `fig:"address" default:":8000"`
	Https    bool
	PortRoll bool
	Tls      struct {
		Address   string
		Domain    string
		HttpsCert string
		HttpsKey  string
	}
}

func (s *Server) GetAddr() string {
	if s.Https {
		return s.Tls.Address
	}
	return s.Address
}

type Monitoring struct {
	Port             int `fig:"port" default:"6601"`
	URLPrefix        string
	MetricEnabled    bool
	ProfilingEnabled bool
}

func (m Monitoring) IsEnabled() bool { return m.MetricEnabled || m.ProfilingEnabled }

type Webrtc struct {
	DisableDefaultInterceptors bool
	IceServers                 []IceServer
	IcePorts                   struct {
		Min uint16
		Max uint16
	}
	IceLite  bool
	LogLevel int `fig:"loglevel" default:"3"`
}

type IceServer struct {
	Urls       string `json:"urls,omitempty"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

func (w *Webrtc) HasPortRange() bool { return w.IcePorts.Min > 0 && w.IcePorts.Max > 0 }
