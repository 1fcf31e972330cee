// Package client accesses a MikeDB server through its REST api.
//
// Store implements store.IStore on top of an http.ClientTransport, so code
// written against the local registry can run against a remote server. It adds
// the operations only the api offers: paged reads, merge patches and uploads.
// Status codes are mapped back to store errors (400 to validation, 401 to
// authorization, everything else internal).
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Endpoint:      "localhost:8080",
//	  APIKey:        "5up3r53cr3tK3y",
//	  TimeoutSecond: 5,
//	}
//	s, err := client.NewHTTPStore(config, http.NewClientTransport())
//	if err != nil {
//	  return err
//	}
//	defer s.Close()
//
//	_, err = s.Put("app", "settings", value.MustParse(`{"theme":"dark"}`), "")
//	v, loaded, err := s.Get("app", "settings", nil)
//
// Thread Safety:
//
//	A Store can be used concurrently from multiple goroutines.
package client
