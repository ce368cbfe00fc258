package webservice

type DConfigManager = dConfigManager

// Addr returns the true listen address of the running server.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.addr == nil {
		return s.httpServer.Addr
	}
	return s.addr.String()
}
