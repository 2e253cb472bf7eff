package siesta

// AddRoute registers handler for method and uri, returning a Token whose
// Close removes exactly this registration (spec §4.1 "Registration",
// C6). AddRoute is legal both before and after Start.
func (s *Server) AddRoute(method, uri string, handler Handler) (*Token, error) {
	s.mu.Lock()
	base, id, err := s.routes.add(method, uri, handler)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return newToken(func() {
		s.mu.Lock()
		s.routes.remove(method, base, id)
		s.mu.Unlock()
	}), nil
}

// AddDirectory registers a subtree file handler mapping requests under
// uriPrefix onto fsRoot (spec §4.4, C4).
func (s *Server) AddDirectory(uriPrefix, fsRoot string) (*Token, error) {
	mount, err := newDirectoryMount(uriPrefix, fsRoot)
	if err != nil {
		return nil, configErrorf("AddDirectory", "%v", err)
	}

	s.mu.Lock()
	s.directories[uriPrefix] = mount
	s.mu.Unlock()

	return newToken(func() {
		s.mu.Lock()
		delete(s.directories, uriPrefix)
		s.mu.Unlock()
		mount.close()
	}), nil
}

// AddTextWebSocket installs a text-mode WebSocket endpoint at path, backed
// by factory, admitting at most max concurrent connections (0 means
// unbounded; spec §4.5).
func (s *Server) AddTextWebSocket(path string, factory WSFactory, max int) (*Token, error) {
	return s.addWebSocket(path, factory, true, max)
}

// AddBinaryWebSocket is AddTextWebSocket for binary-mode frames.
func (s *Server) AddBinaryWebSocket(path string, factory WSFactory, max int) (*Token, error) {
	return s.addWebSocket(path, factory, false, max)
}

func (s *Server) addWebSocket(path string, factory WSFactory, textMode bool, max int) (*Token, error) {
	s.mu.Lock()
	if _, exists := s.websockets[path]; exists {
		s.mu.Unlock()
		return nil, configErrorf("AddTextWebSocket", "a websocket endpoint is already registered at %q", path)
	}

	ep := newWSEndpoint(s, path, factory, textMode, max)
	s.websockets[path] = ep
	s.mu.Unlock()

	return newToken(func() {
		s.mu.Lock()
		delete(s.websockets, path)
		s.mu.Unlock()
		ep.close()
	}), nil
}
