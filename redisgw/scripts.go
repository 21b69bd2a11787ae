package redisgw

import "github.com/redis/go-redis/v9"

// Adds an entry, trimming the stream when a max length is given.
const scriptEnqueue = `
local stream, maxlen = KEYS[1], tonumber(ARGV[1])
local msg_type, name, payload = ARGV[2], ARGV[3], ARGV[4]
local reply_to, corr_id = ARGV[5], ARGV[6]

local args = {stream}
if maxlen and maxlen > 0 then
  table.insert(args, 'MAXLEN')
  table.insert(args, '~')
  table.insert(args, maxlen)
end
table.insert(args, '*')
table.insert(args, 'type')
table.insert(args, msg_type)
table.insert(args, 'name')
table.insert(args, name)
table.insert(args, 'payload')
table.insert(args, payload)

if reply_to and reply_to ~= '' then
  table.insert(args, 'reply_to')
  table.insert(args, reply_to)
end

if corr_id and corr_id ~= '' then
  table.insert(args, 'correlation_id')
  table.insert(args, corr_id)
end

return redis.call('XADD', unpack(args))
`

const scriptPublish = `
return redis.call('PUBLISH', KEYS[1], ARGV[1])
`

var (
	enqueueLua = redis.NewScript(scriptEnqueue)
	publishLua = redis.NewScript(scriptPublish)
)
