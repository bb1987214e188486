package wire

import "testing"

func TestWelcomeRoundTrip(t *testing.T) {
	w := Welcome{YourID: 1, WorldSeed: 0xC0FFEE}
	got, err := DecodeWelcome(EncodeWelcome(w))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != w {
		t.Errorf("got %+v, want %+v", got, w)
	}
}

func TestInputRoundTrip(t *testing.T) {
	in := Input{ClientTick: 42, PlayerID: 7, MoveX: -1, MoveY: 1}
	got, err := DecodeInput(EncodeInput(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != in {
		t.Errorf("got %+v, want %+v", got, in)
	}
}

func TestDecodeInputRejectsWrongSize(t *testing.T) {
	buf := EncodeInput(Input{})
	if _, err := DecodeInput(buf[:len(buf)-1]); err != ErrShort {
		t.Errorf("err = %v, want ErrShort", err)
	}
	if _, err := DecodeInput(append(buf, 0)); err != ErrShort {
		t.Errorf("err = %v, want ErrShort (oversized)", err)
	}
}

func TestClampAxis(t *testing.T) {
	cases := map[int8]int8{-5: -1, -1: -1, 0: 0, 1: 1, 5: 1, 127: 1, -128: -1}
	for in, want := range cases {
		if got := ClampAxis(in); got != want {
			t.Errorf("ClampAxis(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestSnapRoundTrip(t *testing.T) {
	s := Snap{
		ServerTick: 100,
		Count:      3,
		Players: [MaxGamePlayers]PlayerState{
			{ID: 0, X: 200, Y: 200},
			{ID: 1, X: 290, Y: 200},
			{ID: 2, X: 380, Y: 200},
		},
	}
	got, err := DecodeSnap(EncodeSnap(s))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != s {
		t.Errorf("got %+v, want %+v", got, s)
	}
}

func TestStartGameRoundTrip(t *testing.T) {
	sg := StartGame{WorldSeed: 0xC0FFEE}
	got, err := DecodeStartGame(EncodeStartGame(sg))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != sg {
		t.Errorf("got %+v, want %+v", got, sg)
	}
}

func TestPeekType(t *testing.T) {
	typ, err := PeekType(EncodeGameHello(GameHello{Protocol: GameProtocol}))
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if typ != GameTypeHello {
		t.Errorf("typ = %d, want %d", typ, GameTypeHello)
	}
	if _, err := PeekType(nil); err != ErrShort {
		t.Errorf("err = %v, want ErrShort", err)
	}
}
