package imap

// RespCode is the atom of a bracketed response code in a status
// response, e.g. the UIDVALIDITY in "* OK [UIDVALIDITY 3857529045] Ok".
type RespCode string

const (
	CodeNone RespCode = ""

	// RFC 3501
	CodeAlert          RespCode = "ALERT"
	CodeBadCharset     RespCode = "BADCHARSET"
	CodeCapability     RespCode = "CAPABILITY"
	CodeParse          RespCode = "PARSE"
	CodePermanentFlags RespCode = "PERMANENTFLAGS"
	CodeReadOnly       RespCode = "READ-ONLY"
	CodeReadWrite      RespCode = "READ-WRITE"
	CodeTryCreate      RespCode = "TRYCREATE"
	CodeUIDNext        RespCode = "UIDNEXT"
	CodeUIDValidity    RespCode = "UIDVALIDITY"
	CodeUnseen         RespCode = "UNSEEN"

	// RFC 4315 UIDPLUS
	CodeAppendUID    RespCode = "APPENDUID"
	CodeCopyUID      RespCode = "COPYUID"
	CodeUIDNotSticky RespCode = "UIDNOTSTICKY"

	// RFC 7162 CONDSTORE/QRESYNC
	CodeHighestModSeq RespCode = "HIGHESTMODSEQ"
	CodeNoModSeq      RespCode = "NOMODSEQ"
	CodeModified      RespCode = "MODIFIED"
	CodeClosed        RespCode = "CLOSED"

	// RFC 5530 response codes
	CodeUnavailable          RespCode = "UNAVAILABLE"
	CodeAuthenticationFailed RespCode = "AUTHENTICATIONFAILED"
	CodeAuthorizationFailed  RespCode = "AUTHORIZATIONFAILED"
	CodeExpired              RespCode = "EXPIRED"
	CodePrivacyRequired      RespCode = "PRIVACYREQUIRED"
	CodeContactAdmin         RespCode = "CONTACTADMIN"
	CodeNoPerm               RespCode = "NOPERM"
	CodeInUse                RespCode = "INUSE"
	CodeExpungeIssued        RespCode = "EXPUNGEISSUED"
	CodeCorruption           RespCode = "CORRUPTION"
	CodeServerBug            RespCode = "SERVERBUG"
	CodeClientBug            RespCode = "CLIENTBUG"
	CodeCannot               RespCode = "CANNOT"
	CodeLimit                RespCode = "LIMIT"
	CodeOverQuota            RespCode = "OVERQUOTA"
	CodeAlreadyExists        RespCode = "ALREADYEXISTS"
	CodeNonExistent          RespCode = "NONEXISTENT"

	// RFC 4978 COMPRESS
	CodeCompressionActive RespCode = "COMPRESSIONACTIVE"

	// RFC 5464 METADATA
	CodeMetadata RespCode = "METADATA"

	// RFC 2193 / RFC 5255 / RFC 6154 / RFC 8474
	CodeReferral  RespCode = "REFERRAL"
	CodeUseAttr   RespCode = "USEATTR"
	CodeMailboxID RespCode = "MAILBOXID"

	// RFC 8437 / misc
	CodeNotificationOverflow RespCode = "NOTIFICATIONOVERFLOW"
	CodeHasChildren          RespCode = "HASCHILDREN"
	CodeUnknownCTE           RespCode = "UNKNOWN-CTE"
)

// CodeData carries the machine-readable payload of a response code.
// Which fields are set depends on Code.
type CodeData struct {
	Code RespCode

	// Code is one of: UIDVALIDITY, UIDNEXT, UNSEEN, HIGHESTMODSEQ (Num64)
	Num   uint32
	Num64 uint64

	// Code is PERMANENTFLAGS
	Flags FlagSet

	// Code is CAPABILITY
	Caps Capabilities

	// Code is APPENDUID (UIDs holds one entry) or COPYUID
	UIDValidity uint32
	SrcUIDs     UIDSet
	UIDs        UIDSet

	// Code is MODIFIED
	Modified UIDSet

	// Code is BADCHARSET
	Charsets []string

	// Anything unrecognized: raw atom arguments.
	Args []string
}
