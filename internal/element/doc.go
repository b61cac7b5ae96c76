// Package element runs RSA encryption transactions against a secure element.
//
// A Session owns the link to one element and allows a single command in
// flight. Encrypt validates a request, resolves the key size and submits the
// command; the element completes it asynchronously through a callback that
// fills the request's Handle. Await blocks on the Handle until the element
// reports a final status or the wait times out, in which case the command is
// aborted and the element reset.
//
// Devices implement the Device interface. Package emulator provides a
// software element and package pkcs11dev bridges to a PKCS#11 token.
//
// Typical use:
//
//	s, err := element.Open(ctx, dev, element.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	key, _ := element.ResolveOnChipSized(domain.OIDRSAKey1, 2048)
//	ct, err := s.EncryptMessage(ctx, domain.NewEncryptRequest(msg, key))
package element
