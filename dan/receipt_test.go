package dan_test

import (
	"context"
	"errors"
	"testing"

	"github.com/blockchain-hcj/biconomy-client-sdk/dan"
	"github.com/blockchain-hcj/biconomy-client-sdk/dan/dantest"
)

func TestReceiptVerifiedAgainstStaticJWKS(t *testing.T) {
	n := newNetwork(t)
	v, err := dan.NewStaticReceiptVerifier(n.JWKS(), dantest.Issuer)
	if err != nil {
		t.Fatalf("NewStaticReceiptVerifier: %v", err)
	}
	c := dan.New(n.URL(), dan.WithReceiptVerifier(v))
	generate(t, c, newOwner(t))
}

func TestReceiptVerifiedAgainstRemoteJWKS(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := newNetwork(t)
	v, err := dan.NewReceiptVerifier(ctx, n.JWKSURL(), dantest.Issuer)
	if err != nil {
		t.Fatalf("NewReceiptVerifier: %v", err)
	}
	generate(t, dan.New(n.URL(), dan.WithReceiptVerifier(v)), newOwner(t))
}

func TestReceiptFromOtherNetworkRejected(t *testing.T) {
	n := newNetwork(t)
	other := newNetwork(t)
	v, err := dan.NewStaticReceiptVerifier(other.JWKS(), dantest.Issuer)
	if err != nil {
		t.Fatalf("NewStaticReceiptVerifier: %v", err)
	}
	_, err = dan.New(n.URL(), dan.WithReceiptVerifier(v)).GenerateSessionKey(context.Background(), dan.KeyGenRequest{Owner: newOwner(t), ChainID: testChain})
	if !errors.Is(err, dan.ErrInvalidReceipt) {
		t.Fatalf("err = %v, want ErrInvalidReceipt", err)
	}
}

func TestReceiptWrongIssuerRejected(t *testing.T) {
	n := newNetwork(t)
	v, err := dan.NewStaticReceiptVerifier(n.JWKS(), "someone-else")
	if err != nil {
		t.Fatalf("NewStaticReceiptVerifier: %v", err)
	}
	_, err = dan.New(n.URL(), dan.WithReceiptVerifier(v)).GenerateSessionKey(context.Background(), dan.KeyGenRequest{Owner: newOwner(t), ChainID: testChain})
	if !errors.Is(err, dan.ErrInvalidReceipt) {
		t.Fatalf("err = %v, want ErrInvalidReceipt", err)
	}
}

func TestReceiptMissing(t *testing.T) {
	n := newNetwork(t)
	v, err := dan.NewStaticReceiptVerifier(n.JWKS(), "")
	if err != nil {
		t.Fatalf("NewStaticReceiptVerifier: %v", err)
	}
	err = v.Verify(context.Background(), "", "k", []byte{1}, newOwner(t).Address())
	if !errors.Is(err, dan.ErrInvalidReceipt) {
		t.Fatalf("err = %v, want ErrInvalidReceipt", err)
	}
}
