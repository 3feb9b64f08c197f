package safedecoder

// Function subsets of the Gnosis Safe master copy ABIs that are relevant for
// state reconstruction. Only inputs matter for decoding call payloads.

const safeABIv1_1_1 = `[
  {"type":"function","name":"setup","inputs":[
    {"name":"_owners","type":"address[]"},
    {"name":"_threshold","type":"uint256"},
    {"name":"to","type":"address"},
    {"name":"data","type":"bytes"},
    {"name":"fallbackHandler","type":"address"},
    {"name":"paymentToken","type":"address"},
    {"name":"payment","type":"uint256"},
    {"name":"paymentReceiver","type":"address"}]},
  {"type":"function","name":"addOwnerWithThreshold","inputs":[
    {"name":"owner","type":"address"},
    {"name":"_threshold","type":"uint256"}]},
  {"type":"function","name":"removeOwner","inputs":[
    {"name":"prevOwner","type":"address"},
    {"name":"owner","type":"address"},
    {"name":"_threshold","type":"uint256"}]},
  {"type":"function","name":"swapOwner","inputs":[
    {"name":"prevOwner","type":"address"},
    {"name":"oldOwner","type":"address"},
    {"name":"newOwner","type":"address"}]},
  {"type":"function","name":"changeThreshold","inputs":[
    {"name":"_threshold","type":"uint256"}]},
  {"type":"function","name":"changeMasterCopy","inputs":[
    {"name":"_masterCopy","type":"address"}]},
  {"type":"function","name":"setFallbackHandler","inputs":[
    {"name":"handler","type":"address"}]},
  {"type":"function","name":"enableModule","inputs":[
    {"name":"module","type":"address"}]},
  {"type":"function","name":"disableModule","inputs":[
    {"name":"prevModule","type":"address"},
    {"name":"module","type":"address"}]},
  {"type":"function","name":"approveHash","inputs":[
    {"name":"hashToApprove","type":"bytes32"}]},
  {"type":"function","name":"execTransaction","inputs":[
    {"name":"to","type":"address"},
    {"name":"value","type":"uint256"},
    {"name":"data","type":"bytes"},
    {"name":"operation","type":"uint8"},
    {"name":"safeTxGas","type":"uint256"},
    {"name":"baseGas","type":"uint256"},
    {"name":"gasPrice","type":"uint256"},
    {"name":"gasToken","type":"address"},
    {"name":"refundReceiver","type":"address"},
    {"name":"signatures","type":"bytes"}]},
  {"type":"function","name":"execTransactionFromModule","inputs":[
    {"name":"to","type":"address"},
    {"name":"value","type":"uint256"},
    {"name":"data","type":"bytes"},
    {"name":"operation","type":"uint8"}]}
]`

const safeABIv1_0_0 = `[
  {"type":"function","name":"setup","inputs":[
    {"name":"_owners","type":"address[]"},
    {"name":"_threshold","type":"uint256"},
    {"name":"to","type":"address"},
    {"name":"data","type":"bytes"},
    {"name":"paymentToken","type":"address"},
    {"name":"payment","type":"uint256"},
    {"name":"paymentReceiver","type":"address"}]}
]`
