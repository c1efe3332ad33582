package engine

// Kind identifies the socket pattern a handle participates in. The engine
// uses it to pick the dispatch strategy and to refuse connections between
// incompatible peers during the handshake.
type Kind uint8

const (
	ClientKind Kind = iota + 1
	ServerKind
	RadioKind
	DishKind
	ScatterKind
	GatherKind
)

// String returns the kind's lowercase name, which doubles as its key in
// declarative configuration.
func (k Kind) String() string {
	switch k {
	case ClientKind:
		return "client"
	case ServerKind:
		return "server"
	case RadioKind:
		return "radio"
	case DishKind:
		return "dish"
	case ScatterKind:
		return "scatter"
	case GatherKind:
		return "gather"
	default:
		return "unknown"
	}
}

// peerKind returns the only kind this kind may connect to.
func (k Kind) peerKind() Kind {
	switch k {
	case ClientKind:
		return ServerKind
	case ServerKind:
		return ClientKind
	case RadioKind:
		return DishKind
	case DishKind:
		return RadioKind
	case ScatterKind:
		return GatherKind
	case GatherKind:
		return ScatterKind
	default:
		return 0
	}
}

// CompatibleWith reports whether a connection between k and remote is legal.
func (k Kind) CompatibleWith(remote Kind) bool {
	return k.peerKind() == remote
}

// CanSend reports whether the pattern has an outgoing direction.
func (k Kind) CanSend() bool {
	switch k {
	case ClientKind, ServerKind, RadioKind, ScatterKind:
		return true
	default:
		return false
	}
}

// CanRecv reports whether the pattern has an incoming direction.
func (k Kind) CanRecv() bool {
	switch k {
	case ClientKind, ServerKind, DishKind, GatherKind:
		return true
	default:
		return false
	}
}
