package core

// maxAcceptPerTick bounds how many connections one listener event accepts,
// so a connection storm cannot starve completions and writes
const maxAcceptPerTick = 256
