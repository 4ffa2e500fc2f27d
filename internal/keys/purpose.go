package keys

// Purpose names the slot a derived key is used for. Each purpose gets its own
// salt, so no two purposes ever share key material even within one profile.
type Purpose string

const (
	PurposeMaster        Purpose = "master"
	PurposeTransactions  Purpose = "transactions"
	PurposeBreakthroughs Purpose = "breakthroughs"
	PurposeAPIKeys       Purpose = "apiKeys"
	PurposeSettings      Purpose = "settings"
	PurposeBlocks        Purpose = "blocks"
	PurposeResearch      Purpose = "research"
	PurposeSync          Purpose = "sync"
	PurposeBackup        Purpose = "backup"
	PurposeAudit         Purpose = "audit"

	// Encryption-layer purposes. The layered encryptor owns these; they are
	// part of the fixed set so Rotate re-derives them with everything else.
	PurposeLayerBase         Purpose = "layer_base"
	PurposeLayerConfidential Purpose = "layer_confidential"
	PurposeLayerSecret       Purpose = "layer_secret"
	PurposeLayerTopSecret    Purpose = "layer_top_secret"

	// PurposeIntegrity keys the envelope digests.
	PurposeIntegrity Purpose = "integrity"
)

// AllPurposes is the closed set of derivable purposes. Rotate walks this list.
var AllPurposes = []Purpose{
	PurposeMaster,
	PurposeTransactions,
	PurposeBreakthroughs,
	PurposeAPIKeys,
	PurposeSettings,
	PurposeBlocks,
	PurposeResearch,
	PurposeSync,
	PurposeBackup,
	PurposeAudit,
	PurposeLayerBase,
	PurposeLayerConfidential,
	PurposeLayerSecret,
	PurposeLayerTopSecret,
	PurposeIntegrity,
}

var validPurposes = func() map[Purpose]struct{} {
	m := make(map[Purpose]struct{}, len(AllPurposes))
	for _, p := range AllPurposes {
		m[p] = struct{}{}
	}
	return m
}()

// Valid reports whether p is one of the defined purposes.
func (p Purpose) Valid() bool {
	_, ok := validPurposes[p]
	return ok
}
