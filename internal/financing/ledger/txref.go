package ledger

import (
	"encoding/hex"
	"strconv"

	"golang.org/x/crypto/sha3"
)

// computeTxRef derives a stable 0x-prefixed Keccak-256 reference from the transaction contents
func computeTxRef(tx *CreditTransaction) string {
	h := sha3.NewLegacyKeccak256()
	for _, field := range []string{
		tx.ID.String(),
		tx.ProjectID.String(),
		tx.OwnerID,
		strconv.FormatFloat(tx.CO2Tons, 'f', -1, 64),
		strconv.FormatInt(tx.TokensMinted, 10),
		strconv.FormatInt(int64(tx.TotalRevenue), 10),
		strconv.FormatInt(int64(tx.Shares.Community), 10),
		strconv.FormatInt(int64(tx.Shares.Panchayat), 10),
		strconv.FormatInt(int64(tx.Shares.Platform), 10),
		strconv.FormatInt(int64(tx.Shares.Buffer), 10),
		strconv.FormatInt(tx.MintedAt.UnixNano(), 10),
	} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// VerifyTxRef reports whether the stored reference matches the transaction contents
func VerifyTxRef(tx *CreditTransaction) bool {
	return tx.TxRef == computeTxRef(tx)
}
